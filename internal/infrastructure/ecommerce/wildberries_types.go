package ecommerce

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// moscow is the zone of zone-less upstream timestamps
var moscow = loadMoscow()

func loadMoscow() *time.Location {
	if loc, err := time.LoadLocation("Europe/Moscow"); err == nil {
		return loc
	}
	return time.FixedZone("MSK", 3*60*60)
}

var wbTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// wbTime parses upstream timestamps. RFC3339 values keep their offset,
// zone-less values are Moscow time. Unparseable values decode to the zero time.
type wbTime struct {
	time.Time
}

func (t *wbTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	t.Time = parseWBTime(s)
	return nil
}

func parseWBTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return parsed.UTC()
	}
	for _, layout := range wbTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, moscow); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// formatDateFrom renders a cursor as the dateFrom query value
func formatDateFrom(c marketplace.Cursor) string {
	return c.Time().In(moscow).Format(time.RFC3339Nano)
}

// wbOrder is one row of /api/v1/supplier/orders
type wbOrder struct {
	SRID           string `json:"srid"`
	Barcode        string `json:"barcode"`
	Date           wbTime `json:"date"`
	LastChangeDate wbTime `json:"lastChangeDate"`
	WarehouseName  string `json:"warehouseName"`
	IsCancel       bool   `json:"isCancel"`
}

func (o wbOrder) toDomain() marketplace.OrderRow {
	return marketplace.OrderRow{
		ID:             strings.TrimSpace(o.SRID),
		Barcode:        strings.TrimSpace(o.Barcode),
		Date:           o.Date.Time,
		LastChangeDate: o.LastChangeDate.Time,
		WarehouseName:  o.WarehouseName,
		IsCancel:       o.IsCancel,
	}
}

// wbStock is one row of /api/v1/supplier/stocks
type wbStock struct {
	Barcode        string `json:"barcode"`
	Quantity       int    `json:"quantity"`
	LastChangeDate wbTime `json:"lastChangeDate"`
	WarehouseName  string `json:"warehouseName"`
}

func (s wbStock) toDomain() marketplace.StockRow {
	return marketplace.StockRow{
		Barcode:        strings.TrimSpace(s.Barcode),
		Quantity:       s.Quantity,
		LastChangeDate: s.LastChangeDate.Time,
		WarehouseName:  s.WarehouseName,
	}
}

// wbWarehouse is one row of /api/v3/warehouses
type wbWarehouse struct {
	ID       int64  `json:"id"`
	OfficeID int64  `json:"officeId"`
	Name     string `json:"name"`
}

// wbStocksUpdate is the body of PUT /api/v3/stocks/{warehouseId}
type wbStocksUpdate struct {
	Stocks []marketplace.StockAmount `json:"stocks"`
}
