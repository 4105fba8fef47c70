package core

import (
	"fmt"
	"slices"
)

// Registry is the ordered, read-only printer inventory. The first record
// is the default printer. A Registry is never mutated after NewRegistry
// returns, so concurrent reads need no locking.
type Registry struct {
	printers []PrinterRecord
}

func NewRegistry(records []PrinterRecord) (*Registry, error) {
	if len(records) == 0 {
		return nil, ErrNoPrinters
	}

	printers := make([]PrinterRecord, 0, len(records))
	for i, r := range records {
		if r.Address == "" {
			return nil, fmt.Errorf("printer %d: %w", i, ErrEmptyAddress)
		}
		printers = append(printers, PrinterRecord{
			Address:     r.Address,
			RoutingKeys: slices.Clone(r.RoutingKeys),
		})
	}

	return &Registry{printers: printers}, nil
}

// Lookup returns the first printer that claims routingKey, or the default
// printer when the key is empty or unclaimed. It must not be called on an
// empty registry; use Select when that is possible.
func (r *Registry) Lookup(routingKey string) PrinterRecord {
	if routingKey != "" {
		for _, p := range r.printers {
			if slices.Contains(p.RoutingKeys, routingKey) {
				return p
			}
		}
	}
	return r.printers[0]
}

func (r *Registry) Select(routingKey string) (PrinterRecord, error) {
	if r == nil || len(r.printers) == 0 {
		return PrinterRecord{}, ErrNoPrinters
	}
	return r.Lookup(routingKey), nil
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.printers)
}

// Records returns a copy of the inventory in registry order.
func (r *Registry) Records() []PrinterRecord {
	if r == nil {
		return nil
	}
	out := make([]PrinterRecord, len(r.printers))
	for i, p := range r.printers {
		out[i] = PrinterRecord{Address: p.Address, RoutingKeys: slices.Clone(p.RoutingKeys)}
	}
	return out
}
