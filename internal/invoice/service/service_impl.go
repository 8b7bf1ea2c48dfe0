package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payables/internal/clock"
	"github.com/smallbiznis/payables/internal/config"
	"github.com/smallbiznis/payables/internal/invoice/cache"
	"github.com/smallbiznis/payables/internal/invoice/domain"
	"github.com/smallbiznis/payables/internal/invoice/validation"
	"github.com/smallbiznis/payables/internal/observability/logger"
	"github.com/smallbiznis/payables/internal/observability/metrics"
	"github.com/smallbiznis/payables/pkg/db"
	"github.com/smallbiznis/payables/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opList   = "list"
	opGet    = "get"
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"

	// updateAttempts is the first try plus one retry after a write conflict.
	updateAttempts = 2
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Rules   *config.RulesHolder
	Cache   cache.InvoiceCache `optional:"true"`
	Metrics *metrics.Metrics   `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	rules   *config.RulesHolder
	cache   cache.InvoiceCache
	metrics *metrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	invoiceCache := p.Cache
	if invoiceCache == nil {
		invoiceCache = cache.New(nil, config.Config{}, p.Log)
	}
	rules := p.Rules
	if rules == nil {
		rules = config.NewStaticRulesHolder(config.DefaultInvoiceRules())
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:   p.GenID,
		clock:   clk,
		repo:    p.Repo,
		rules:   rules,
		cache:   invoiceCache,
		metrics: p.Metrics,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	start := time.Now()
	rules := s.rules.Get()
	page := pagination.Page{Page: req.Page, PerPage: req.PerPage}.
		Normalize(rules.Pagination.DefaultPerPage, rules.Pagination.MaxPerPage)

	var (
		items []*domain.Invoice
		total int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		total, err = s.repo.Count(ctx, tx)
		if err != nil {
			return err
		}
		items, err = s.repo.List(ctx, tx, page)
		return err
	})
	if err != nil {
		return domain.ListInvoiceResponse{}, s.fail(ctx, opList, start, s.storageErr(err))
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	s.metrics.ObserveWorkflow(ctx, opList, "ok", time.Since(start))
	return domain.ListInvoiceResponse{
		Invoices: invoices,
		Page:     page,
		Total:    total,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	start := time.Now()
	invoiceID, err := s.parseID(id)
	if err != nil {
		return domain.Invoice{}, s.fail(ctx, opGet, start, err)
	}

	if cached, ok := s.cache.Get(ctx, invoiceID); ok {
		s.metrics.ObserveWorkflow(ctx, opGet, "cache_hit", time.Since(start))
		return *cached, nil
	}

	var found *domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		found, err = s.repo.FindByID(ctx, tx, invoiceID)
		return err
	})
	if err != nil {
		return domain.Invoice{}, s.fail(ctx, opGet, start, s.storageErr(err))
	}
	if found == nil {
		return domain.Invoice{}, s.fail(ctx, opGet, start, domain.ErrNotFound)
	}

	s.cache.Set(ctx, *found)
	s.metrics.ObserveWorkflow(ctx, opGet, "ok", time.Since(start))
	return *found, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.Invoice, error) {
	start := time.Now()
	fields, violations := validation.Validate(req.Payload, validation.ModeCreate, s.validationOptions())

	var created domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		violations, err := s.checkNumber(ctx, tx, fields.Number, 0, violations)
		if err != nil {
			return err
		}
		if len(violations) > 0 {
			return domain.NewValidationError(violations...)
		}

		now := s.now()
		invoice := domain.Invoice{
			ID:        s.genID.Generate(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		fields.Apply(&invoice)

		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return numberTaken()
			}
			return err
		}

		created = invoice
		return nil
	})
	if err != nil {
		return domain.Invoice{}, s.fail(ctx, opCreate, start, s.storageErr(err))
	}

	s.metrics.RecordInvoiceCreated(ctx, created.Currency)
	s.metrics.ObserveWorkflow(ctx, opCreate, "ok", time.Since(start))
	logger.WithContext(ctx, s.log).Info("invoice created",
		zap.String("invoice_id", created.ID.String()),
		zap.String("number", created.Number),
		zap.String("status", created.Status.String()),
	)
	return created, nil
}

// Update replaces every writable attribute of a pending invoice. A write that
// loses a race with another update is retried once from a fresh read.
func (s *Service) Update(ctx context.Context, req domain.UpdateInvoiceRequest) (domain.Invoice, error) {
	start := time.Now()
	invoiceID, err := s.parseID(req.ID)
	if err != nil {
		return domain.Invoice{}, s.fail(ctx, opUpdate, start, err)
	}

	var updated domain.Invoice
	for attempt := 1; attempt <= updateAttempts; attempt++ {
		updated, err = s.updateOnce(ctx, invoiceID, req.Payload)
		if !errors.Is(err, domain.ErrExecutionConflict) {
			break
		}
		s.metrics.RecordWriteConflict(ctx, opUpdate)
		logger.WithContext(ctx, s.log).Warn("invoice update conflicted",
			zap.String("invoice_id", invoiceID.String()),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return domain.Invoice{}, s.fail(ctx, opUpdate, start, err)
	}

	s.cache.Set(ctx, updated)
	s.metrics.RecordInvoiceUpdated(ctx, updated.Status.String())
	s.metrics.ObserveWorkflow(ctx, opUpdate, "ok", time.Since(start))
	logger.WithContext(ctx, s.log).Info("invoice updated",
		zap.String("invoice_id", updated.ID.String()),
		zap.String("status", updated.Status.String()),
	)
	return updated, nil
}

func (s *Service) updateOnce(ctx context.Context, id snowflake.ID, payload domain.Payload) (domain.Invoice, error) {
	var refreshed domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		if err := domain.GuardUpdate(current.Status); err != nil {
			return err
		}

		fields, violations := validation.Validate(payload, validation.ModeUpdate, s.validationOptions())
		violations, err = s.checkNumber(ctx, tx, fields.Number, id, violations)
		if err != nil {
			return err
		}
		if len(violations) > 0 {
			return domain.NewValidationError(violations...)
		}

		next := *current
		fields.Apply(&next)
		next.UpdatedAt = s.now()
		if !next.UpdatedAt.After(current.UpdatedAt) {
			next.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
		}

		rows, err := s.repo.UpdateIfPending(ctx, tx, &next, current.UpdatedAt)
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				return numberTaken()
			}
			return err
		}
		if rows == 0 {
			return domain.ErrExecutionConflict
		}

		found, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrExecutionConflict
		}
		refreshed = *found
		return nil
	})
	if err != nil {
		return domain.Invoice{}, s.storageErr(err)
	}
	return refreshed, nil
}

// Delete is never permitted; invoices are kept for the record.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.fail(ctx, opDelete, time.Now(), domain.ErrUnsupported)
}

// checkNumber appends the uniqueness violation unless the number already
// failed its own rules.
func (s *Service) checkNumber(ctx context.Context, tx *gorm.DB, number string, excludeID snowflake.ID, violations []domain.Violation) ([]domain.Violation, error) {
	if number == "" || hasField(violations, domain.FieldNumber) {
		return violations, nil
	}
	taken, err := s.repo.NumberTaken(ctx, tx, number, excludeID)
	if err != nil {
		return violations, err
	}
	if taken {
		violations = append(violations, domain.Violation{Field: domain.FieldNumber, Message: domain.MsgNumberTaken})
	}
	return violations, nil
}

func (s *Service) validationOptions() validation.Options {
	return validation.Options{DefaultCurrency: s.rules.Get().DefaultCurrency}
}

// now truncates to microseconds so the stamp survives a database round trip.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrNotFound
	}
	return id, nil
}

// storageErr tags driver level connection failures so the API can answer 503.
func (s *Service) storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	if _, ok := domain.AsValidationError(err); ok {
		return err
	}
	if db.IsUnavailableErr(err) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return err
}

func (s *Service) fail(ctx context.Context, operation string, start time.Time, err error) error {
	outcome := "error"
	log := logger.WithContext(ctx, s.log)
	switch verr, ok := domain.AsValidationError(err); {
	case ok:
		outcome = "rejected"
		field := ""
		if first, found := verr.First(); found {
			field = first.Field
		}
		s.metrics.RecordRejection(ctx, operation, field)
		log.Info("invoice rejected", zap.String("operation", operation), zap.Int("violations", len(verr.Violations)), zap.String("field", field))
	case errors.Is(err, domain.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, domain.ErrUnsupported):
		outcome = "unsupported"
	case errors.Is(err, domain.ErrExecutionConflict):
		outcome = "conflict"
		log.Warn("invoice write conflict", zap.String("operation", operation))
	default:
		log.Error("invoice workflow failed", zap.String("operation", operation), zap.Error(err))
	}
	s.metrics.ObserveWorkflow(ctx, operation, outcome, time.Since(start))
	return err
}

func numberTaken() error {
	return domain.NewValidationError(domain.Violation{Field: domain.FieldNumber, Message: domain.MsgNumberTaken})
}

func hasField(violations []domain.Violation, field string) bool {
	for _, v := range violations {
		if v.Field == field {
			return true
		}
	}
	return false
}
