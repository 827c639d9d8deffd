// Package service contains the service layer for the Marketcore API
package service

import (
	"sort"
	"sync"

	"github.com/marketbots/marketcore/internal/models"
)

// symbolIndex is the per-(exchange,segment) query surface. Both strategies
// expose identical semantics; callers never branch on dataset size.
type symbolIndex interface {
	lookupSymbol(symbol, series string) []uint32
	uniqueSymbols(series string) []string
	expiryStrikeRange(symbol, expiry string, lo, hi float64) []uint32
	size() int
}

// scanIndex serves small segments with a linear predicate scan and a lazily
// built unique-symbol cache. The cache lives inside the generation, so a
// reload discards it together with the records it was derived from.
type scanIndex struct {
	records []*models.InstrumentRecord

	mu       sync.Mutex
	symCache map[string][]string
}

func newScanIndex(records []*models.InstrumentRecord) *scanIndex {
	return &scanIndex{records: records, symCache: make(map[string][]string)}
}

func (x *scanIndex) size() int { return len(x.records) }

func (x *scanIndex) lookupSymbol(symbol, series string) []uint32 {
	var tokens []uint32
	for _, r := range x.records {
		if r.Tradingsymbol != symbol {
			continue
		}
		if series != "" && r.Series != series {
			continue
		}
		tokens = append(tokens, r.InstrumentToken)
	}
	return tokens
}

func (x *scanIndex) uniqueSymbols(series string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	if cached, ok := x.symCache[series]; ok {
		return append([]string(nil), cached...)
	}
	seen := make(map[string]struct{})
	var symbols []string
	for _, r := range x.records {
		if series != "" && r.Series != series {
			continue
		}
		if _, dup := seen[r.Tradingsymbol]; dup {
			continue
		}
		seen[r.Tradingsymbol] = struct{}{}
		symbols = append(symbols, r.Tradingsymbol)
	}
	sort.Strings(symbols)
	x.symCache[series] = symbols
	return append([]string(nil), symbols...)
}

func (x *scanIndex) expiryStrikeRange(symbol, expiry string, lo, hi float64) []uint32 {
	var tokens []uint32
	for _, r := range x.records {
		if r.Name != symbol || r.Expiry != expiry {
			continue
		}
		if r.Strike < lo || r.Strike > hi {
			continue
		}
		tokens = append(tokens, r.InstrumentToken)
	}
	sortByStrike(tokens, x.records)
	return tokens
}

func sortByStrike(tokens []uint32, records []*models.InstrumentRecord) {
	strikes := make(map[uint32]float64, len(tokens))
	for _, r := range records {
		strikes[r.InstrumentToken] = r.Strike
	}
	sort.Slice(tokens, func(i, j int) bool {
		return strikes[tokens[i]] < strikes[tokens[j]]
	})
}

// strikeEntry pairs a strike with its token inside a (symbol,expiry) chain.
type strikeEntry struct {
	strike float64
	token  uint32
}

// multiIndex serves large derivative segments with maps built once at load
// time: symbol lookups in O(1), strike ranges by binary search.
type multiIndex struct {
	count          int
	bySymbol       map[string][]uint32
	bySymbolSeries map[string][]uint32
	byExpiry       map[string][]strikeEntry // key symbol+"|"+expiry, sorted by strike
	symbols        []string
	symbolsBySer   map[string][]string
}

func newMultiIndex(records []*models.InstrumentRecord) *multiIndex {
	x := &multiIndex{
		count:          len(records),
		bySymbol:       make(map[string][]uint32),
		bySymbolSeries: make(map[string][]uint32),
		byExpiry:       make(map[string][]strikeEntry),
		symbolsBySer:   make(map[string][]string),
	}
	serSeen := make(map[string]map[string]struct{})
	for _, r := range records {
		x.bySymbol[r.Tradingsymbol] = append(x.bySymbol[r.Tradingsymbol], r.InstrumentToken)
		x.bySymbolSeries[r.Tradingsymbol+"|"+r.Series] =
			append(x.bySymbolSeries[r.Tradingsymbol+"|"+r.Series], r.InstrumentToken)
		if r.Expiry != "" {
			key := r.Name + "|" + r.Expiry
			x.byExpiry[key] = append(x.byExpiry[key], strikeEntry{strike: r.Strike, token: r.InstrumentToken})
		}
		if serSeen[r.Series] == nil {
			serSeen[r.Series] = make(map[string]struct{})
		}
		if _, dup := serSeen[r.Series][r.Tradingsymbol]; !dup {
			serSeen[r.Series][r.Tradingsymbol] = struct{}{}
			x.symbolsBySer[r.Series] = append(x.symbolsBySer[r.Series], r.Tradingsymbol)
		}
	}
	for key := range x.byExpiry {
		chain := x.byExpiry[key]
		sort.Slice(chain, func(i, j int) bool { return chain[i].strike < chain[j].strike })
	}
	x.symbols = make([]string, 0, len(x.bySymbol))
	for sym := range x.bySymbol {
		x.symbols = append(x.symbols, sym)
	}
	sort.Strings(x.symbols)
	for ser := range x.symbolsBySer {
		sort.Strings(x.symbolsBySer[ser])
	}
	return x
}

func (x *multiIndex) size() int { return x.count }

func (x *multiIndex) lookupSymbol(symbol, series string) []uint32 {
	if series != "" {
		return append([]uint32(nil), x.bySymbolSeries[symbol+"|"+series]...)
	}
	return append([]uint32(nil), x.bySymbol[symbol]...)
}

func (x *multiIndex) uniqueSymbols(series string) []string {
	if series != "" {
		return append([]string(nil), x.symbolsBySer[series]...)
	}
	return append([]string(nil), x.symbols...)
}

func (x *multiIndex) expiryStrikeRange(symbol, expiry string, lo, hi float64) []uint32 {
	chain := x.byExpiry[symbol+"|"+expiry]
	if len(chain) == 0 {
		return nil
	}
	first := sort.Search(len(chain), func(i int) bool { return chain[i].strike >= lo })
	var tokens []uint32
	for i := first; i < len(chain) && chain[i].strike <= hi; i++ {
		tokens = append(tokens, chain[i].token)
	}
	return tokens
}
