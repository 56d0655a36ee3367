package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// Archiver exports closed positions and the event log to the object store
// before a history reset deletes them. Each archive lives under a timestamped
// prefix holding one JSONL object per record type.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchiver creates an Archiver writing under the given key prefix
// (e.g. "archives"). An empty prefix stores archives at the bucket root.
func NewArchiver(c *Client, prefix string) *Archiver {
	return &Archiver{
		client: c.S3(),
		bucket: c.Bucket(),
		prefix: prefix,
	}
}

// positionRecord is the JSONL shape for an archived position.
type positionRecord struct {
	ID           string              `json:"id"`
	TokenAddress string              `json:"token_address"`
	Symbol       string              `json:"symbol"`
	Chain        string              `json:"chain"`
	EntryPrice   float64             `json:"entry_price"`
	Quantity     float64             `json:"quantity"`
	NotionalUSD  float64             `json:"notional_usd"`
	StopPrice    float64             `json:"stop_price"`
	TakePrice    float64             `json:"take_price"`
	TrailingStop *float64            `json:"trailing_stop,omitempty"`
	HighWater    float64             `json:"high_water"`
	Score        float64             `json:"score"`
	DryRun       bool                `json:"dry_run"`
	Status       string              `json:"status"`
	OpenedAt     time.Time           `json:"opened_at"`
	ClosedAt     *time.Time          `json:"closed_at,omitempty"`
	ExitPrice    *float64            `json:"exit_price,omitempty"`
	RealizedPnL  *float64            `json:"realized_pnl_usd,omitempty"`
	CloseReason  *domain.CloseReason `json:"close_reason,omitempty"`
}

// eventRecord is the JSONL shape for an archived event.
type eventRecord struct {
	ID         int64          `json:"id"`
	Kind       string         `json:"kind"`
	PositionID *string        `json:"position_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Archive uploads the given positions and events as two JSONL objects under
// a timestamped prefix and returns that prefix as the archive reference.
func (a *Archiver) Archive(ctx context.Context, positions []domain.Position, events []domain.Event) (string, error) {
	ref := fmt.Sprintf("%s/%s", a.keyPrefix(), time.Now().UTC().Format("20060102T150405Z"))

	posBody, err := encodePositions(positions)
	if err != nil {
		return "", fmt.Errorf("s3blob: encode positions: %w", err)
	}
	evBody, err := encodeEvents(events)
	if err != nil {
		return "", fmt.Errorf("s3blob: encode events: %w", err)
	}

	uploader := manager.NewUploader(a.client)

	if err := a.upload(ctx, uploader, ref+"/positions.jsonl", posBody); err != nil {
		return "", err
	}
	if err := a.upload(ctx, uploader, ref+"/events.jsonl", evBody); err != nil {
		return "", err
	}

	return ref, nil
}

func (a *Archiver) keyPrefix() string {
	if a.prefix == "" {
		return "archives"
	}
	return a.prefix
}

func (a *Archiver) upload(ctx context.Context, uploader *manager.Uploader, key string, body []byte) error {
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", key, err)
	}
	return nil
}

func encodePositions(positions []domain.Position) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range positions {
		rec := positionRecord{
			ID:           p.ID,
			TokenAddress: p.TokenAddress,
			Symbol:       p.Symbol,
			Chain:        p.Chain,
			EntryPrice:   p.EntryPrice,
			Quantity:     p.Quantity,
			NotionalUSD:  p.NotionalUSD,
			StopPrice:    p.StopPrice,
			TakePrice:    p.TakePrice,
			TrailingStop: p.TrailingStop,
			HighWater:    p.HighWater,
			Score:        p.Score,
			DryRun:       p.DryRun,
			Status:       string(p.Status),
			OpenedAt:     p.OpenedAt,
			ClosedAt:     p.ClosedAt,
			ExitPrice:    p.ExitPrice,
			RealizedPnL:  p.RealizedPnLUSD,
			CloseReason:  p.CloseReason,
		}
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeEvents(events []domain.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		rec := eventRecord{
			ID:         ev.ID,
			Kind:       string(ev.Kind),
			PositionID: ev.PositionID,
			Detail:     ev.Detail,
			CreatedAt:  ev.CreatedAt,
		}
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
