package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/face-verify/internal/imagestore"
	"github.com/example/face-verify/internal/usecase"
)

// MaxUploadSize bounds the multipart memory for live capture uploads.
const MaxUploadSize = 8 << 20

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.VerificationUseCase, store *imagestore.Store) {
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Server is running"})
	})

	router.POST("/verify", func(c *gin.Context) {
		file, err := c.FormFile("live_image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "No file uploaded"})
			return
		}

		// The staging path is derived from the request id, so two in-flight
		// uploads never clobber each other.
		requestID := uuid.NewString()
		livePath := store.LiveCapturePath(requestID)
		// Cleanup is registered before staging: a failed save can still
		// leave a partial file behind.
		defer store.RemoveLive(livePath)
		if err := c.SaveUploadedFile(file, livePath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Live image not saved"})
			return
		}

		if !store.IsLoadable(livePath, "live capture") {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Could not process captured image"})
			return
		}

		result, err := uc.Verify(c.Request.Context(), requestID, livePath)
		if err != nil {
			// Orchestration failures keep the 200 status of the original
			// service and surface the error text in the body.
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": err.Error()})
			return
		}

		if result.Dual {
			c.JSON(http.StatusOK, dualResponse(result))
			return
		}
		c.JSON(http.StatusOK, rollingResponse(result))
	})

	router.POST("/reset", func(c *gin.Context) {
		if err := uc.Reset(uuid.NewString()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Verification reset successful"})
	})

	router.GET("/result/:id", func(c *gin.Context) {
		requestID := c.Param("id")
		attempt, err := uc.GetResult(c.Request.Context(), requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Result not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"request_id":        attempt.RequestID,
			"score":             attempt.Score,
			"verified":          attempt.Verified,
			"verification_type": attempt.VerificationType,
			"message":           attempt.Message,
			"created_at":        attempt.CreatedAt,
		})
	})

	router.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			if errors.Is(err, usecase.ErrHistoryDisabled) {
				c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Attempt history is not configured"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func rollingResponse(result *usecase.Result) gin.H {
	details := gin.H{
		"face_verified":     result.Verified,
		"verification_type": result.VerificationType,
		"timestamp":         result.Timestamp.Format(usecase.TimestampLayout),
	}
	if result.Verified {
		details["image_saved"] = result.ImageSaved
	}

	return gin.H{
		"face_score":           result.Score,
		"threshold":            result.ThresholdPercent,
		"is_first_login":       result.IsFirstLogin,
		"verification_details": details,
		"status":               statusOf(result),
		"message":              result.Message,
		"auth_result": gin.H{
			"success":     result.Verified,
			"score":       result.Score,
			"log_message": result.LogMessage,
		},
	}
}

func dualResponse(result *usecase.Result) gin.H {
	return gin.H{
		"aadhaar_score": result.AadhaarScore,
		"bank_score":    result.BankScore,
		"avg_score":     result.Score,
		"threshold":     result.ThresholdPercent,
		"verification_details": gin.H{
			"aadhaar_verified": result.AadhaarVerified,
			"bank_verified":    result.BankVerified,
			"timestamp":        result.Timestamp.Format(usecase.TimestampLayout),
		},
		"status":  statusOf(result),
		"message": result.Message,
		"auth_result": gin.H{
			"success":     result.Verified,
			"score":       result.Score,
			"log_message": result.LogMessage,
		},
	}
}

func statusOf(result *usecase.Result) string {
	if result.Verified {
		return "success"
	}
	return "failed"
}
