package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apperrors "github.com/phillip/membership-portal-go/apperrors"
	config "github.com/phillip/membership-portal-go/config"
	ledger "github.com/phillip/membership-portal-go/ledger"
	models "github.com/phillip/membership-portal-go/models"
	paystack "github.com/phillip/membership-portal-go/paystack"
	reconcile "github.com/phillip/membership-portal-go/reconcile"
	utils "github.com/phillip/membership-portal-go/utils"
)

const (
	roleAdmin = "admin"

	maxWebhookBody   = 1 << 20
	defaultListLimit = 100
	maxListLimit     = 500
)

type verifyPaymentInput struct {
	Reference string `json:"reference"`
	Metadata  struct {
		Description string `json:"description"`
		Category    string `json:"category"`
	} `json:"metadata"`
}

// ---------------- VERIFY ----------------
func VerifyPayment(engine *reconcile.Engine, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input verifyPaymentInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, log, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()

		res, err := engine.Verify(ctx, reconcile.VerifyRequest{
			Reference:   input.Reference,
			PayerID:     c.GetString("user_id"),
			PayerEmail:  c.GetString("email"),
			Description: input.Metadata.Description,
			Category:    input.Metadata.Category,
		})
		if err != nil {
			respondError(c, log, err)
			return
		}

		if res.AlreadyRecorded {
			c.JSON(http.StatusOK, gin.H{
				"message":          "payment already recorded",
				"already_recorded": true,
				"payment":          res.Payment,
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message":          "payment recorded",
			"already_recorded": false,
			"payment":          res.Payment,
		})
	}
}

// ---------------- WEBHOOK ----------------
// The signature is checked against the raw bytes before anything is decoded.
// Any non-2xx answer makes the gateway redeliver.
func PaystackWebhook(engine *reconcile.Engine, verifier *paystack.SignatureVerifier, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
		body, err := c.GetRawData()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large", "code": "validation_error"})
				return
			}
			respondError(c, log, fmt.Errorf("%w: could not read body", apperrors.ErrValidation))
			return
		}

		if err := verifier.Verify(body, c.GetHeader(paystack.SignatureHeader)); err != nil {
			log.WithFields(logrus.Fields{"client_ip": c.ClientIP()}).Warn("webhook signature rejected")
			respondError(c, log, err)
			return
		}

		// signed but unusable payloads are acknowledged without recording
		evt, err := paystack.ParseEvent(body)
		if err != nil {
			log.WithError(err).Warn("signed webhook payload unusable, acknowledged without recording")
			c.JSON(http.StatusOK, gin.H{"message": "event ignored"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()

		res, err := engine.HandleWebhook(ctx, *evt)
		if err != nil {
			if errors.Is(err, apperrors.ErrValidation) {
				log.WithError(err).WithField("event", evt.Event).Warn("signed webhook payload unusable, acknowledged without recording")
				c.JSON(http.StatusOK, gin.H{"message": "event ignored"})
				return
			}
			log.WithError(err).WithField("reference", evt.Data.Reference).Error("webhook processing failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed", "code": apperrors.Code(err)})
			return
		}

		switch {
		case res.Ignored:
			c.JSON(http.StatusOK, gin.H{"message": "event ignored"})
		case res.AlreadyRecorded:
			c.JSON(http.StatusOK, gin.H{"message": "payment already recorded", "reference": res.Payment.Reference})
		default:
			c.JSON(http.StatusOK, gin.H{"message": "payment recorded", "reference": res.Payment.Reference})
		}
	}
}

// ---------------- LIST ----------------
func ListPayments(store ledger.Store, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := paymentFilterFromQuery(c)
		if err != nil {
			respondError(c, log, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		payments, err := store.List(ctx, filter)
		if err != nil {
			respondError(c, log, err)
			return
		}

		if len(payments) == 0 {
			c.JSON(http.StatusOK, []models.Payment{})
			return
		}

		// --- Entries are immutable, so the newest one plus the count identifies the page ---
		latest := payments[0]
		for _, p := range payments {
			if p.CreatedAt.After(latest.CreatedAt) {
				latest = p
			}
		}

		etag := utils.GenerateETag(latest.Reference+":"+strconv.Itoa(len(payments)), latest.CreatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
		c.Header("Last-Modified", latest.CreatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, payments)
	}
}

// Members only ever see their own entries; admins may narrow by payer_id.
func paymentFilterFromQuery(c *gin.Context) (models.PaymentFilter, error) {
	filter := models.PaymentFilter{
		Category: c.Query("category"),
		Origin:   c.Query("origin"),
		Limit:    defaultListLimit,
	}

	if c.GetString("role") == roleAdmin {
		filter.PayerID = c.Query("payer_id")
	} else {
		filter.PayerID = c.GetString("user_id")
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("%w: limit must be a positive integer", apperrors.ErrValidation)
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}

	for key, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := parseQueryTime(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: %s must be RFC3339 or YYYY-MM-DD", apperrors.ErrValidation, key)
		}
		*dst = &t
	}

	return filter, nil
}

func parseQueryTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// ---------------- GET ----------------
func GetPayment(store ledger.Store, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reference := strings.TrimSpace(c.Param("reference"))
		if reference == "" {
			respondError(c, log, fmt.Errorf("%w: reference is required", apperrors.ErrValidation))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		payment, err := store.Get(ctx, reference)
		if err != nil {
			respondError(c, log, err)
			return
		}

		// someone else's entry is reported as missing
		if c.GetString("role") != roleAdmin && payment.PayerID != c.GetString("user_id") {
			respondError(c, log, fmt.Errorf("%w: payment %q", apperrors.ErrNotFound, reference))
			return
		}

		etag := utils.GenerateETag(payment.Reference, payment.CreatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, payment)
	}
}

// ---------------- HEALTH ----------------
func Health(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.MongoClient != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.MongoClient.Ping(ctx, nil); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// respondError writes the taxonomy status and code. Server-side failures get a generic message.
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
			msg = "internal error, please retry"
		}
	}
	c.JSON(status, gin.H{"error": msg, "code": apperrors.Code(err)})
}
