package storagefactory

import (
	"fmt"

	"github.com/dayal123456/Lumico-ai/internal/config"
	"github.com/dayal123456/Lumico-ai/internal/pkg/storage"
	"github.com/dayal123456/Lumico-ai/internal/pkg/storage/local"
	"github.com/dayal123456/Lumico-ai/internal/pkg/storage/oss"
)

// New 根据配置创建存储后端
func New(cfg *config.StorageConfig) (storage.Storage, error) {
	switch storage.StorageType(cfg.Type) {
	case storage.StorageTypeLocal, "":
		if cfg.Local == nil {
			return nil, fmt.Errorf("local storage config missing")
		}
		return local.NewLocalStorage(cfg.Local.BasePath, cfg.Local.BaseURL)
	case storage.StorageTypeOSS:
		if cfg.OSS == nil {
			return nil, fmt.Errorf("oss storage config missing")
		}
		return oss.NewOSSStorage(cfg.OSS.Endpoint, cfg.OSS.Bucket, cfg.OSS.AccessKeyID, cfg.OSS.AccessKeySecret)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
