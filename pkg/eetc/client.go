// Package eetc provides Go clients for the EETC Data Hub and Notifications
// Manager APIs.
package eetc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"eetc/internal/domain"
	"eetc/internal/util"
)

// DefaultDataHubURL is the production EETC Data Hub API base URL.
const DefaultDataHubURL = "https://eetc-data-hub-service-nb7ewdzv6q-ue.a.run.app/api"

// DataClient talks to the EETC Data Hub API: historical prices,
// fundamentals, macroeconomic indicators and order records.
type DataClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *util.RateLimiter
}

// DataClientOption customises a DataClient.
type DataClientOption func(*DataClient)

// WithBaseURL overrides the Data Hub base URL, mainly for tests and staging.
func WithBaseURL(baseURL string) DataClientOption {
	return func(c *DataClient) { c.baseURL = baseURL }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) DataClientOption {
	return func(c *DataClient) { c.httpClient = hc }
}

// NewDataClient creates a DataClient authenticated with the given API key.
func NewDataClient(apiKey string, opts ...DataClientOption) *DataClient {
	c := &DataClient{
		apiKey:     apiKey,
		baseURL:    DefaultDataHubURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    util.NewRateLimiter(300),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PricePoint is one daily price record from the Data Hub.
type PricePoint struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"` // yyyy-mm-dd
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// PriceQuery narrows a price data request. All fields are optional dates in
// yyyy-mm-dd format.
type PriceQuery struct {
	Date     string
	FromDate string
	ToDate   string
}

// GetPriceData fetches historical price data for a symbol, sorted by date.
func (c *DataClient) GetPriceData(ctx context.Context, symbol string, q PriceQuery) ([]PricePoint, error) {
	params := url.Values{"symbol": {symbol}}
	if q.Date != "" {
		params.Set("date", q.Date)
	}
	if q.FromDate != "" {
		params.Set("from_date", q.FromDate)
	}
	if q.ToDate != "" {
		params.Set("to_date", q.ToDate)
	}

	var points []PricePoint
	if err := c.getJSON(ctx, "/price/", params, &points); err != nil {
		return nil, err
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points, nil
}

// GetPriceBars fetches historical price data for a symbol and converts it
// into bars ready for replay, sorted by date.
func (c *DataClient) GetPriceBars(ctx context.Context, symbol string, q PriceQuery) ([]domain.Bar, error) {
	points, err := c.GetPriceData(ctx, symbol, q)
	if err != nil {
		return nil, err
	}
	return BarsFromPricePoints(points)
}

// BarsFromPricePoints converts Data Hub price records into daily bars,
// stamped at midnight UTC. The Data Hub does not carry trade counts or VWAP,
// so those fields are zero.
func BarsFromPricePoints(points []PricePoint) ([]domain.Bar, error) {
	bars := make([]domain.Bar, 0, len(points))
	for _, p := range points {
		ts, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, fmt.Errorf("eetc: price point for %s has bad date %q: %w", p.Symbol, p.Date, err)
		}
		bars = append(bars, domain.Bar{
			Symbol:    p.Symbol,
			Timestamp: ts,
			Open:      p.Open,
			High:      p.High,
			Low:       p.Low,
			Close:     p.Close,
			Volume:    p.Volume,
		})
	}
	return bars, nil
}

// Fundamental is one fundamentals record for a company and fiscal period.
type Fundamental struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	FiscalYear   int     `json:"fiscal_year"`
	FiscalPeriod string  `json:"fiscal_period"`
	Revenue      float64 `json:"revenue"`
	NetIncome    float64 `json:"net_income"`
}

// FundamentalsQuery narrows a fundamentals request. Frequency defaults to
// "Quarterly"; "Yearly" is the other accepted value.
type FundamentalsQuery struct {
	Frequency string
	Name      string
	Year      int
}

// GetFundamentals fetches historical fundamentals data for a symbol.
func (c *DataClient) GetFundamentals(ctx context.Context, symbol string, q FundamentalsQuery) ([]Fundamental, error) {
	frequency := q.Frequency
	if frequency == "" {
		frequency = "Quarterly"
	}
	params := url.Values{"symbol": {symbol}, "frequency": {frequency}}
	if q.Name != "" {
		params.Set("name", q.Name)
	}
	if q.Year != 0 {
		params.Set("year", strconv.Itoa(q.Year))
	}

	var out []Fundamental
	if err := c.getJSON(ctx, "/fundamentals/", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IndicatorPoint is one observation of a macroeconomic indicator.
type IndicatorPoint struct {
	Name      string  `json:"name"`
	Date      string  `json:"date"`
	Value     float64 `json:"value"`
	Frequency string  `json:"frequency"`
}

// IndicatorQuery narrows an indicator request.
type IndicatorQuery struct {
	Frequency string
	FromDate  string
	ToDate    string
}

// GetIndicatorData fetches historical data for a macroeconomic indicator
// such as "GDP" or "CPI", sorted by date.
func (c *DataClient) GetIndicatorData(ctx context.Context, name string, q IndicatorQuery) ([]IndicatorPoint, error) {
	params := url.Values{"name": {name}}
	if q.Frequency != "" {
		params.Set("frequency", q.Frequency)
	}
	if q.FromDate != "" {
		params.Set("from_date", q.FromDate)
	}
	if q.ToDate != "" {
		params.Set("to_date", q.ToDate)
	}

	var points []IndicatorPoint
	if err := c.getJSON(ctx, "/indicators/", params, &points); err != nil {
		return nil, err
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points, nil
}

// GetIndicators lists supported macroeconomic indicators grouped by
// frequency.
func (c *DataClient) GetIndicators(ctx context.Context) (map[string][]string, error) {
	var out map[string][]string
	if err := c.getJSON(ctx, "/indicators/names/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Company is one company record from the Data Hub.
type Company struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

// GetCompanies lists supported companies, optionally filtered by index name
// such as "SP500" or "NASDAQ100".
func (c *DataClient) GetCompanies(ctx context.Context, index string) ([]Company, error) {
	params := url.Values{}
	if index != "" {
		params.Set("index", index)
	}

	var out struct {
		Companies []Company `json:"companies"`
	}
	if err := c.getJSON(ctx, "/companies/", params, &out); err != nil {
		return nil, err
	}
	return out.Companies, nil
}

// OrderRecord is a trading order stored in the Data Hub.
type OrderRecord struct {
	OrderID    string  `json:"order_id"`
	AssetType  string  `json:"asset_type"`
	Action     string  `json:"action"`
	Symbol     string  `json:"symbol"`
	Size       int     `json:"size"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	Exchange   string  `json:"exchange"`
	Strategy   string  `json:"strategy"`
	Broker     string  `json:"broker"`
	Strike     float64 `json:"strike,omitempty"`
	Right      string  `json:"right,omitempty"`
	PositionID string  `json:"position_id,omitempty"`
}

// OrderFilter narrows an order query. Zero-valued fields are not sent.
type OrderFilter struct {
	OrderID    string
	AssetType  string
	Action     string
	Symbol     string
	Strike     float64
	Right      string
	Currency   string
	Exchange   string
	Strategy   string
	Broker     string
	PositionID string
}

// GetOrders retrieves order records matching the filter.
func (c *DataClient) GetOrders(ctx context.Context, f OrderFilter) ([]OrderRecord, error) {
	params := url.Values{}
	set := func(k, v string) {
		if v != "" {
			params.Set(k, v)
		}
	}
	set("order_id", f.OrderID)
	set("asset_type", f.AssetType)
	set("action", f.Action)
	set("symbol", f.Symbol)
	set("right", f.Right)
	set("currency", f.Currency)
	set("exchange", f.Exchange)
	set("strategy", f.Strategy)
	set("broker", f.Broker)
	set("position_id", f.PositionID)
	if f.Strike != 0 {
		params.Set("strike", strconv.FormatFloat(f.Strike, 'f', -1, 64))
	}

	var out []OrderRecord
	if err := c.getJSON(ctx, "/orders/", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveOrders saves one or more orders to the Data Hub.
func (c *DataClient) SaveOrders(ctx context.Context, orders []OrderRecord) error {
	body, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("eetc: encoding orders: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("eetc: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("EETC-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("eetc: POST /orders/: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("eetc: POST /orders/: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// getJSON performs an authenticated GET with rate limiting and retries,
// decoding the JSON response body into out.
func (c *DataClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body []byte
	err := util.Retry(ctx, 3, time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("EETC-API-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return fmt.Errorf("eetc: GET %s: %w", path, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("eetc: decoding %s response: %w", path, err)
	}
	return nil
}
