package configstore

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/interledger/publisher-tools/internal/logging"
	"github.com/interledger/publisher-tools/internal/metrics"
	"github.com/interledger/publisher-tools/internal/wallet"
)

// Handler provides HTTP endpoints for widget config documents.
type Handler struct {
	store Store
}

// NewHandler creates a new config handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up config CRUD routes. The wallet address rides
// in the path, so a wildcard route is needed: wallet addresses contain
// slashes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/config/*walletAddress", h.GetConfig)
	r.PUT("/config/*walletAddress", h.PutConfig)
	r.DELETE("/config/*walletAddress", h.DeleteConfig)
}

// walletParam extracts and canonicalizes the wallet address path
// segment; both `$wallet.example/alice` and the full https form key the
// same document.
func walletParam(c *gin.Context) (string, bool) {
	raw := strings.TrimPrefix(c.Param("walletAddress"), "/")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	addr, err := wallet.Canonicalize(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_wallet_address",
			"message": "wallet address is not valid",
		})
		return "", false
	}
	return addr, true
}

// GetConfig returns the stored document for a wallet address.
func (h *Handler) GetConfig(c *gin.Context) {
	addr, ok := walletParam(c)
	if !ok {
		return
	}

	doc, err := h.store.Get(c.Request.Context(), addr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "config_not_found",
				"message": "no config stored for this wallet address",
			})
			return
		}
		logging.L(c.Request.Context()).Error("config get failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "failed to load config",
		})
		return
	}

	metrics.ConfigDocumentsTotal.WithLabelValues("get").Inc()
	c.JSON(http.StatusOK, doc)
}

// PutConfig creates or replaces the document, bumping its version.
func (h *Handler) PutConfig(c *gin.Context) {
	addr, ok := walletParam(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxDocumentSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_body",
			"message": "failed to read request body",
		})
		return
	}

	doc, err := h.store.Put(c.Request.Context(), addr, body)
	if err != nil {
		switch {
		case errors.Is(err, ErrDocumentTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "config_too_large",
				"message": "config document exceeds the size limit",
			})
		case errors.Is(err, ErrInvalidDocument):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_config",
				"message": "config must be a JSON object",
			})
		default:
			logging.L(c.Request.Context()).Error("config put failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "failed to store config",
			})
		}
		return
	}

	metrics.ConfigDocumentsTotal.WithLabelValues("put").Inc()
	c.JSON(http.StatusOK, doc)
}

// DeleteConfig removes the document.
func (h *Handler) DeleteConfig(c *gin.Context) {
	addr, ok := walletParam(c)
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), addr); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "config_not_found",
				"message": "no config stored for this wallet address",
			})
			return
		}
		logging.L(c.Request.Context()).Error("config delete failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "failed to delete config",
		})
		return
	}

	metrics.ConfigDocumentsTotal.WithLabelValues("delete").Inc()
	c.Status(http.StatusNoContent)
}
