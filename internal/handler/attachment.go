package handler

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dayal123456/Lumico-ai/internal/model"
	"github.com/dayal123456/Lumico-ai/internal/model/chat"
	"github.com/dayal123456/Lumico-ai/internal/pkg/ctxutil"
	"github.com/dayal123456/Lumico-ai/internal/pkg/id"
	"github.com/dayal123456/Lumico-ai/internal/pkg/storage"
	"github.com/dayal123456/Lumico-ai/internal/pkg/textutil"
)

const (
	// maxAttachmentSize 附件大小上限
	maxAttachmentSize = 10 << 20 // 10MB
	// maxExtractedChars 文本附件截断长度
	maxExtractedChars = 50000
)

// AttachmentHandler 附件提取处理器
// 图片转成 base64 data URL 内联进消息；其余文件提取为截断后的纯文本。
// 原始文件归档到存储后端，失败不影响提取结果。
type AttachmentHandler struct {
	store storage.Storage // 可为空，归档降级为空操作
}

// NewAttachmentHandler 创建附件提取处理器
func NewAttachmentHandler(store storage.Storage) *AttachmentHandler {
	return &AttachmentHandler{store: store}
}

// Extract 提取上传文件
// @Summary      提取附件内容
// @Description  图片返回 base64 data URL，其余类型返回截断后的纯文本
// @Tags         附件
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "上传文件"
// @Success      200  {object}  model.ExtractedFile
// @Failure      400  {object}  model.ErrorResponse
// @Router       /api/v1/files/extract [post]
func (h *AttachmentHandler) Extract(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40003,
			Message: "file is required",
			Detail:  err.Error(),
		})
		return
	}

	if fileHeader.Size > maxAttachmentSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40004,
			Message: "file too large",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to read file",
			Detail:  err.Error(),
		})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAttachmentSize))
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to read file",
			Detail:  err.Error(),
		})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	result := model.ExtractedFile{Name: fileHeader.Filename}
	if strings.HasPrefix(contentType, "image/") {
		result.Type = string(chat.AttachmentImage)
		result.Content = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	} else {
		result.Type = string(chat.AttachmentFile)
		result.Content = extractText(data)
	}

	// 原始文件归档，失败只记日志
	if h.store != nil {
		key := archiveKey(userID, fileHeader.Filename)
		url, err := h.store.Upload(c.Request.Context(), key, bytes.NewReader(data), contentType)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to archive attachment")
		} else {
			result.URL = url
		}
	}

	c.JSON(http.StatusOK, result)
}

// extractText 把字节内容还原成可用的纯文本
// 非 UTF-8 内容替换非法字节，超长截断
func extractText(data []byte) string {
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return textutil.Truncate(text, maxExtractedChars)
}

// archiveKey 归档路径: attachments/{userID}/{date}/{uuid}{ext}
func archiveKey(userID, filename string) string {
	ext := filepath.Ext(filename)
	return fmt.Sprintf("attachments/%s/%s/%s%s", userID, time.Now().Format("2006-01-02"), id.New(), ext)
}
