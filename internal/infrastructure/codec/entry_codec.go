package codec

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
)

const (
	EncodingIdentity = ""
	EncodingZstd     = "zstd"
)

// EntryCodec serializes cache entries for the Redis and Postgres stores. Bodies at or
// above the threshold are zstd-compressed; a threshold <= 0 disables compression.
type EntryCodec struct {
	threshold int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

func NewEntryCodec(threshold int) (*EntryCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &EntryCodec{threshold: threshold, enc: enc, dec: dec}, nil
}

// Close releases the decoder's resources.
func (c *EntryCodec) Close() {
	c.dec.Close()
}

type envelope struct {
	URL        string      `json:"url"`
	Status     int         `json:"status"`
	StatusText string      `json:"status_text"`
	Header     http.Header `json:"header"`
	Encoding   string      `json:"encoding,omitempty"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"stored_at"`
}

func (c *EntryCodec) Marshal(e *cache.Entry) ([]byte, error) {
	body, encoding := c.CompressBody(e.Body)
	return json.Marshal(envelope{
		URL:        e.URL,
		Status:     e.Status,
		StatusText: e.StatusText,
		Header:     e.Header,
		Encoding:   encoding,
		Body:       body,
		StoredAt:   e.StoredAt,
	})
}

func (c *EntryCodec) Unmarshal(b []byte) (*cache.Entry, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	body, err := c.DecompressBody(env.Body, env.Encoding)
	if err != nil {
		return nil, err
	}
	return &cache.Entry{
		URL:        env.URL,
		Status:     env.Status,
		StatusText: env.StatusText,
		Header:     env.Header,
		Body:       body,
		StoredAt:   env.StoredAt,
	}, nil
}

// CompressBody returns the stored form of body and the encoding applied to it.
func (c *EntryCodec) CompressBody(body []byte) ([]byte, string) {
	if c.threshold <= 0 || len(body) < c.threshold {
		return body, EncodingIdentity
	}
	return c.enc.EncodeAll(body, make([]byte, 0, len(body)/2)), EncodingZstd
}

func (c *EntryCodec) DecompressBody(body []byte, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingIdentity:
		return body, nil
	case EncodingZstd:
		out, err := c.dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress entry body: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported body encoding %q", encoding)
	}
}
