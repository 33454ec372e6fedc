package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shardgate-project/shardgate/internal/huffman"
)

// maxCompressInput bounds the payload accepted by the compress endpoint.
const maxCompressInput = 64 * 1024

// maxCompressBody bounds the request body: up to three hex characters per
// input byte when the payload is space separated, plus the JSON envelope.
const maxCompressBody = 3*maxCompressInput + 1024

// handleDisconnect closes a live login connection.
func (s *Server) handleDisconnect(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection id"})
		return
	}

	if !s.registry.Kick(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found", "id": id})
		return
	}

	operator, _ := c.Get("operator")
	log.Info().Uint64("conn_id", id).Interface("operator", operator).Msg("API: connection kicked")

	c.JSON(http.StatusOK, gin.H{"status": "disconnected", "id": id})
}

type compressRequest struct {
	Hex string `json:"hex" binding:"required"`
}

// handleCompress runs the Huffman encoder over a hex payload.
func (s *Server) handleCompress(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCompressBody)

	var req compressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large", "max": maxCompressBody})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input, err := hex.DecodeString(strings.Join(strings.Fields(req.Hex), ""))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload is not valid hex"})
		return
	}
	if len(input) > maxCompressInput {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large", "max": maxCompressInput})
		return
	}

	out := huffman.Compress(input)
	c.JSON(http.StatusOK, gin.H{
		"input_bytes":  len(input),
		"output_bytes": len(out),
		"bits":         huffman.CompressedBits(input),
		"compressed":   hex.EncodeToString(out),
	})
}
