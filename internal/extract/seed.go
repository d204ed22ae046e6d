// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"errors"
	"log/slog"

	"github.com/procmine/procmine/internal/store"
)

const seedConfidence = 0.8

var seedTypes = []store.ObjectType{
	{Name: "purchase_order", DisplayName: "Purchase Order", Icon: "receipt", Color: "#2563eb"},
	{Name: "order", DisplayName: "Order", Icon: "shopping-cart", Color: "#16a34a"},
	{Name: "invoice", DisplayName: "Invoice", Icon: "file-text", Color: "#9333ea"},
	{Name: "shipment", DisplayName: "Shipment", Icon: "truck", Color: "#ea580c"},
	{Name: "product", DisplayName: "Product", Icon: "package", Color: "#0891b2"},
	{Name: "customer", DisplayName: "Customer", Icon: "user", Color: "#db2777"},
	{Name: "supplier", DisplayName: "Supplier", Icon: "factory", Color: "#65a30d"},
	{Name: "task", DisplayName: "Task", Icon: "check-square", Color: "#64748b"},
	{Name: "ledger_entry", DisplayName: "Ledger Entry", Icon: "book", Color: "#b45309"},
}

var seedRules = []store.ExtractionRule{
	{
		ID:           "seed-purchase-order",
		Name:         "Purchase order number",
		ObjectType:   "purchase_order",
		SourceFields: store.StringList{"title", "ocr_text"},
		Pattern:      `(?:Purchase Order|PO)\s*(?P<n>PO-\d{4}-\d{6})`,
		NameTemplate: "{n}",
		Priority:     100,
	},
	{
		ID:           "seed-order",
		Name:         "Order number",
		ObjectType:   "order",
		SourceFields: store.StringList{"title", "url", "ocr_text"},
		Pattern:      `(?P<n>ORD-\d{6,})`,
		NameTemplate: "{n}",
		Priority:     90,
	},
	{
		ID:           "seed-invoice",
		Name:         "Invoice number",
		ObjectType:   "invoice",
		SourceFields: store.StringList{"title", "ocr_text"},
		Pattern:      `(?:Invoice|INV)[\s#]*(?P<n>INV-\d{4,})`,
		NameTemplate: "{n}",
		Priority:     90,
	},
	{
		ID:           "seed-shipment",
		Name:         "Shipment tracking id",
		ObjectType:   "shipment",
		SourceFields: store.StringList{"title", "url", "ocr_text"},
		Pattern:      `(?P<n>SHP-\d{6,})`,
		NameTemplate: "{n}",
		Priority:     80,
	},
	{
		ID:           "seed-product",
		Name:         "Product SKU",
		ObjectType:   "product",
		SourceFields: store.StringList{"title", "ocr_text"},
		Pattern:      `(?P<n>SKU-[A-Z0-9]{4,})`,
		NameTemplate: "{n}",
		Priority:     70,
	},
	{
		ID:           "seed-customer",
		Name:         "Customer number",
		ObjectType:   "customer",
		SourceFields: store.StringList{"title", "ocr_text"},
		Pattern:      `(?P<n>CUST-\d{4,})`,
		NameTemplate: "{n}",
		Priority:     70,
	},
	{
		ID:           "seed-supplier",
		Name:         "Supplier number",
		ObjectType:   "supplier",
		SourceFields: store.StringList{"title", "ocr_text"},
		Pattern:      `(?P<n>SUP-\d{4,})`,
		NameTemplate: "{n}",
		Priority:     60,
	},
	{
		ID:           "seed-ledger-entry",
		Name:         "General ledger entry",
		ObjectType:   "ledger_entry",
		SourceFields: store.StringList{"title", "ocr_text"},
		Pattern:      `(?P<n>GL-\d{4}-\d{4,})`,
		NameTemplate: "{n}",
		Priority:     60,
	},
	{
		ID:           "seed-task",
		Name:         "Issue tracker key",
		ObjectType:   "task",
		SourceFields: store.StringList{"title", "url"},
		Pattern:      `(?P<n>[A-Z]{2,10}-\d{1,6})\b`,
		NameTemplate: "{n}",
		// Deliberately lowest: the pattern is generic and overlaps the
		// specific identifiers above.
		Priority: 10,
	},
}

// Seed installs the default object types and extraction rules. Existing
// entries are left untouched, so running it on every startup is safe.
func Seed(ctx context.Context, st *store.Store, logger *slog.Logger) error {
	for i := range seedTypes {
		t := seedTypes[i]
		t.Seeded = true
		if err := st.CreateObjectType(ctx, &t); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return err
		}
	}
	for i := range seedRules {
		r := seedRules[i]
		if _, err := st.GetRule(ctx, r.ID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		r.Enabled = true
		r.Provenance = store.RuleProvenanceSeed
		r.Confidence = seedConfidence
		if err := st.CreateRule(ctx, &r); err != nil {
			return err
		}
		logger.Debug("seeded extraction rule", "rule_id", r.ID)
	}
	return nil
}
