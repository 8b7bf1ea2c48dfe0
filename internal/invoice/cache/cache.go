// Package cache keeps recently read invoices in redis so repeated GETs skip
// the database. A nil redis client turns every call into a miss.
//
// Entries are hashes holding the encoded invoice and its updated_at in
// microseconds. A write only lands when it is newer than what is stored, so a
// reader that loaded a row before a concurrent update cannot put it back.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payables/internal/config"
	"github.com/smallbiznis/payables/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	keyInvoice      = "payables:invoice:%s"
	defaultCacheTTL = 5 * time.Minute

	fieldVersion = "version"
	fieldData    = "data"
)

const setIfNewerScript = `
local current = redis.call("HGET", KEYS[1], "version")
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "data", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`

type InvoiceCache interface {
	Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, bool)
	// Set stores invoice unless the cache already holds the same or a newer
	// version of it.
	Set(ctx context.Context, invoice domain.Invoice)
}

type redisCache struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return client
}

func New(client *redis.Client, cfg config.Config, log *zap.Logger) InvoiceCache {
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.Redis.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisCache{
		client: client,
		script: redis.NewScript(setIfNewerScript),
		ttl:    ttl,
		log:    log.Named("invoice.cache"),
	}
}

func (c *redisCache) Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, bool) {
	if c.client == nil {
		return nil, false
	}

	raw, err := c.client.HGet(ctx, cacheKey(id), fieldData).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("invoice cache read failed", zap.String("invoice_id", id.String()), zap.Error(err))
		}
		return nil, false
	}

	invoice, err := decode(raw)
	if err != nil {
		c.log.Warn("invoice cache entry unreadable", zap.String("invoice_id", id.String()), zap.Error(err))
		c.invalidate(ctx, id)
		return nil, false
	}
	return invoice, true
}

func (c *redisCache) Set(ctx context.Context, invoice domain.Invoice) {
	if c.client == nil || invoice.ID == 0 {
		return
	}

	raw, err := encode(invoice)
	if err != nil {
		c.log.Warn("invoice cache encode failed", zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		return
	}
	key := cacheKey(invoice.ID)
	args := []any{invoice.UpdatedAt.UnixMicro(), raw, c.ttl.Milliseconds()}
	if err := c.script.Run(ctx, c.client, []string{key}, args...).Err(); err != nil {
		c.log.Warn("invoice cache write failed", zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		c.invalidate(ctx, invoice.ID)
	}
}

func (c *redisCache) invalidate(ctx context.Context, id snowflake.ID) {
	if c.client == nil || id == 0 {
		return
	}
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		c.log.Warn("invoice cache invalidate failed", zap.String("invoice_id", id.String()), zap.Error(err))
	}
}

func cacheKey(id snowflake.ID) string {
	return fmt.Sprintf(keyInvoice, id.String())
}

type entry struct {
	ID            string `json:"id"`
	Number        string `json:"number"`
	SupplierName  string `json:"supplier_name"`
	SupplierTaxID string `json:"supplier_tax_id"`
	NetAmount     string `json:"net_amount"`
	VatAmount     string `json:"vat_amount"`
	GrossAmount   string `json:"gross_amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	IssueDate     string `json:"issue_date"`
	DueDate       string `json:"due_date"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func encode(invoice domain.Invoice) ([]byte, error) {
	return json.Marshal(entry{
		ID:            invoice.ID.String(),
		Number:        invoice.Number,
		SupplierName:  invoice.SupplierName,
		SupplierTaxID: invoice.SupplierTaxID,
		NetAmount:     invoice.NetAmount.String(),
		VatAmount:     invoice.VatAmount.String(),
		GrossAmount:   invoice.GrossAmount.String(),
		Currency:      invoice.Currency,
		Status:        invoice.Status.String(),
		IssueDate:     invoice.IssueDateString(),
		DueDate:       invoice.DueDateString(),
		CreatedAt:     invoice.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     invoice.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func decode(raw []byte) (*domain.Invoice, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}

	id, err := snowflake.ParseString(e.ID)
	if err != nil {
		return nil, err
	}
	net, err := decimal.NewFromString(e.NetAmount)
	if err != nil {
		return nil, err
	}
	vat, err := decimal.NewFromString(e.VatAmount)
	if err != nil {
		return nil, err
	}
	gross, err := decimal.NewFromString(e.GrossAmount)
	if err != nil {
		return nil, err
	}
	status, ok := domain.ParseStatus(e.Status)
	if !ok {
		return nil, fmt.Errorf("unknown status %q", e.Status)
	}
	issue, err := time.Parse(domain.DateLayout, e.IssueDate)
	if err != nil {
		return nil, err
	}
	due, err := time.Parse(domain.DateLayout, e.DueDate)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, e.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &domain.Invoice{
		ID:            id,
		Number:        e.Number,
		SupplierName:  e.SupplierName,
		SupplierTaxID: e.SupplierTaxID,
		NetAmount:     net,
		VatAmount:     vat,
		GrossAmount:   gross,
		Currency:      e.Currency,
		Status:        status,
		IssueDate:     datatypes.Date(issue),
		DueDate:       datatypes.Date(due),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}
