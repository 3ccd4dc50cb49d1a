package clickhouse

import "fmt"

// PriceSchema returns the DDL for the price observation tables of database db.
// ReplacingMergeTree collapses re-ingested (product, retailer, day) rows to the latest insert.
func PriceSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.price_observations (
	product_id  LowCardinality(String),
	retailer    LowCardinality(String),
	date        Date,
	price       Float64,
	ingested_at DateTime64(3) DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(ingested_at)
ORDER BY (product_id, date, retailer)`, db),
	}
}
