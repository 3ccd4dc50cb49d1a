package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"PricePulse/internal/domain/models"
	"PricePulse/pkg/util"
)

// NameResolver maps a product display name to its catalog id.
type NameResolver func(name string) (string, bool)

// LoadDatasetFile reads a price dataset CSV from path.
func LoadDatasetFile(path string, resolve NameResolver) ([]models.PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open dataset: %v", models.ErrDatasetUnavailable, err)
	}
	defer f.Close()
	return LoadDataset(f, resolve)
}

// LoadDataset parses a header-driven price CSV. Recognised columns:
// date; product_id or product_name; retailer or site; price or price_inr.
// Rows with an unknown product, bad date or non-positive price are rejected with line context.
func LoadDataset(r io.Reader, resolve NameResolver) ([]models.PricePoint, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := columns(header)
	dateIdx, okDate := col.first("date")
	retIdx, okRet := col.first("retailer", "site")
	priceIdx, okPrice := col.first("price", "price_inr")
	idIdx, okID := col.first("product_id")
	nameIdx, okName := col.first("product_name")
	if !okDate || !okRet || !okPrice || (!okID && !okName) {
		return nil, fmt.Errorf("dataset header %v: need date, retailer, price and product_id or product_name", header)
	}

	var out []models.PricePoint
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		id := ""
		if okID {
			id = strings.TrimSpace(rec[idIdx])
		}
		if id == "" && okName && resolve != nil {
			id, _ = resolve(strings.TrimSpace(rec[nameIdx]))
		}
		if id == "" {
			return nil, fmt.Errorf("line %d: unknown product", line)
		}
		d, ok := util.ParseDate(strings.TrimSpace(rec[dateIdx]))
		if !ok {
			return nil, fmt.Errorf("line %d: bad date %q", line, rec[dateIdx])
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[priceIdx]), 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("line %d: bad price %q", line, rec[priceIdx])
		}
		out = append(out, models.PricePoint{
			ProductID: id,
			Retailer:  strings.TrimSpace(rec[retIdx]),
			Date:      d,
			Price:     price,
		})
	}
	return out, nil
}

type columns []string

func (c columns) first(names ...string) (int, bool) {
	for _, n := range names {
		for i, h := range c {
			if strings.EqualFold(strings.TrimSpace(h), n) {
				return i, true
			}
		}
	}
	return 0, false
}
