package logserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cipherlog/internal/datalog"
	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/auth"
)

var (
	errNoPublicKey = errors.New("no public key registered")
	errZeroKey     = errors.New("public key is all zeros")
)

func (s *Server) publish(c *gin.Context) {
	var req datalog.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	publisher, err := domain.ParseAddress(req.Publisher)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if len(req.Records) == 0 {
		fail(c, http.StatusBadRequest, errors.New("no records"))
		return
	}
	records := make([]domain.Record, 0, len(req.Records))
	for i, w := range req.Records {
		r, err := datalog.RecordFromWire(w)
		if err != nil {
			fail(c, http.StatusBadRequest, fmt.Errorf("record %d: %w", i, err))
			return
		}
		records = append(records, r)
	}

	ctx := c.Request.Context()
	st := auth.Stamp{Timestamp: req.Timestamp, Nonce: req.Nonce}
	if err := s.auth.authorizePublish(ctx, publisher, st, records, req.Signature); err != nil {
		s.reject(c, "publish", publisher, err)
		return
	}
	tx, err := s.backend.Publish(ctx, publisher, records)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	if err := tx.Wait(ctx); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	s.metrics.published.Add(float64(len(records)))
	c.JSON(http.StatusOK, datalog.PublishResponse{TxID: tx.ID()})
}

func (s *Server) readSlot(c *gin.Context) {
	schema, err := domain.ParseSchemaID(c.Param("schema"))
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("schema: %w", err))
		return
	}
	publisher, err := domain.ParseAddress(c.Param("publisher"))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	rows, err := s.backend.ReadAllByPublisher(c.Request.Context(), schema, publisher)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	out := datalog.RowsResponse{Rows: make([]datalog.WireRecord, 0, len(rows))}
	for _, r := range rows {
		out.Rows = append(out.Rows, datalog.RowToWire(r))
	}
	s.metrics.rowsRead.Add(float64(len(rows)))
	c.JSON(http.StatusOK, out)
}

func (s *Server) register(c *gin.Context) {
	address, err := domain.ParseAddress(c.Param("address"))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	var entry datalog.RegistryEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	pub, err := domain.ParseX25519Public(entry.PublicKey)
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("public key: %w", err))
		return
	}
	if pub.IsZero() {
		fail(c, http.StatusBadRequest, errZeroKey)
		return
	}
	signingKey, err := domain.ParseEd25519Public(entry.SigningKey)
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("signing key: %w", err))
		return
	}

	ctx := c.Request.Context()
	st := auth.Stamp{Timestamp: entry.Timestamp, Nonce: entry.Nonce}
	if err := s.auth.authorizeRegister(ctx, address, st, pub, signingKey, entry.Signature); err != nil {
		s.reject(c, "register", address, err)
		return
	}
	tx, err := s.backend.Register(ctx, address, pub)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	if err := tx.Wait(ctx); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, datalog.PublishResponse{TxID: tx.ID()})
}

func (s *Server) fetch(c *gin.Context) {
	address, err := domain.ParseAddress(c.Param("address"))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	pub, ok, err := s.backend.Fetch(c.Request.Context(), address)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		fail(c, http.StatusNotFound, errNoPublicKey)
		return
	}
	c.JSON(http.StatusOK, datalog.RegistryEntry{Address: address.String(), PublicKey: pub.Hex()})
}

// reject answers a write that failed authorization.
func (s *Server) reject(c *gin.Context, route string, address domain.Address, err error) {
	status, reason := http.StatusInternalServerError, "error"
	switch {
	case errors.Is(err, auth.ErrBadSignature):
		status, reason = http.StatusUnauthorized, "signature"
	case errors.Is(err, errStale), errors.Is(err, errReplay):
		status, reason = http.StatusUnauthorized, "freshness"
	case errors.Is(err, errUnbound):
		status, reason = http.StatusForbidden, "unbound"
	case errors.Is(err, errReservedSlot), errors.Is(err, errMissingNonce), errors.Is(err, errZeroSigningID):
		status, reason = http.StatusBadRequest, "malformed"
	}
	if status != http.StatusInternalServerError {
		s.metrics.rejected.WithLabelValues(route, reason).Inc()
		s.log.Warn("write rejected",
			zap.String("route", route),
			zap.Stringer("address", address),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
	fail(c, status, err)
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, datalog.ErrorResponse{Error: err.Error()})
}
