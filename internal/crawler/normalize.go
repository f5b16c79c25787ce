package crawler

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/b3"
	"github.com/sells-group/marketdata-cli/internal/metrics"
	"github.com/sells-group/marketdata-cli/internal/model"
	"github.com/sells-group/marketdata-cli/internal/persist"
	"github.com/sells-group/marketdata-cli/internal/store"
)

// normalizer turns company bundles into a change set. It runs in the single
// consumer, so its indexes need no locking.
type normalizer struct {
	policy persist.Policy
	log    *zap.Logger

	industries    *persist.Index[string, *model.Industry]
	companies     *persist.Index[string, *model.Company]
	junctions     *persist.Index[model.CompanyIndustryKey, struct{}]
	tickers       *persist.Index[string, *model.Ticker]
	splits        *persist.Index[model.EventKey, struct{}]
	subscriptions *persist.Index[model.EventKey, struct{}]
	dividends     *persist.Index[model.EventKey, struct{}]

	cs        store.ChangeSet
	noTickers int
}

func newNormalizer(ref *store.Reference, policy persist.Policy) *normalizer {
	return &normalizer{
		policy: policy,
		log:    zap.L().With(zap.String("component", "crawler.normalize")),
		// Industries, junctions and tickers carry nothing to overwrite.
		industries:    persist.NewIndex("industry", persist.PolicySkip, ref.Industries),
		companies:     persist.NewIndex("company", policy, ref.Companies),
		junctions:     persist.NewIndex("company_industry", persist.PolicySkip, ref.CompanyIndustries),
		tickers:       persist.NewIndex("ticker", persist.PolicySkip, ref.Tickers),
		splits:        persist.NewIndex("split", policy, ref.Splits),
		subscriptions: persist.NewIndex("subscription", policy, ref.Subscriptions),
		dividends:     persist.NewIndex("dividend", policy, ref.Dividends),
	}
}

func (n *normalizer) changeSet() *store.ChangeSet {
	return &n.cs
}

func (n *normalizer) apply(b *bundle) error {
	co := n.company(b)
	n.industriesOf(co)
	tickers := n.tickersOf(co, b.detail)
	if len(tickers) == 0 {
		n.noTickers++
		metrics.M().Records.WithLabelValues("company", "no_tickers").Inc()
		n.log.Warn("company has no tickers", zap.String("cnpj", co.CNPJ), zap.String("name", co.Name))
		return nil
	}
	if b.split != nil {
		n.splitsOf(tickers, b.split)
	}
	n.dividendsOf(tickers, b.dividends)
	return nil
}

func (n *normalizer) company(b *bundle) *model.Company {
	d := b.detail
	fresh := &model.Company{
		CVMCode:                d.CodeCVM,
		CNPJ:                   d.CNPJ,
		Name:                   d.CompanyName,
		TradingName:            d.TradingName,
		IssuingCompany:         d.IssuingCompany,
		IndustryClassification: d.IndustryClassification,
		HasBDR:                 d.HasBDR,
		HasEmissions:           d.HasEmissions,
	}
	existing, found := n.companies.Lookup(d.CNPJ)
	if b.split != nil {
		fresh.CommonShares = int64(b.split.NumberCommonShares)
		fresh.PreferredShares = int64(b.split.NumberPreferredShares)
	} else if found {
		fresh.CommonShares = existing.CommonShares
		fresh.PreferredShares = existing.PreferredShares
	}

	switch n.companies.Decide(d.CNPJ, fresh) {
	case persist.Insert:
		n.cs.Companies = append(n.cs.Companies, fresh)
		return fresh
	case persist.Update:
		fresh.ID = existing.ID
		n.cs.CompanyUpdates = append(n.cs.CompanyUpdates, fresh)
		return fresh
	default:
		return existing
	}
}

func (n *normalizer) industriesOf(co *model.Company) {
	for _, name := range model.SplitIndustries(co.IndustryClassification) {
		key := model.FoldName(name)
		fresh := &model.Industry{Name: name}
		ind := fresh
		if n.industries.Decide(key, fresh) == persist.Insert {
			n.cs.Industries = append(n.cs.Industries, fresh)
		} else {
			ind, _ = n.industries.Lookup(key)
		}

		ci := model.CompanyIndustry{Company: co, Industry: ind}
		if n.junctions.Decide(ci.Key(), struct{}{}) == persist.Insert {
			n.cs.CompanyIndustries = append(n.cs.CompanyIndustries, ci)
		}
	}
}

// tickersOf resolves the company's symbols. A symbol already stored keeps
// the company it was first seen with.
func (n *normalizer) tickersOf(co *model.Company, d *b3.CompanyResponse) []*model.Ticker {
	codes := codeTickers(d)
	out := make([]*model.Ticker, 0, len(codes))
	for _, t := range codes {
		t.Company = co
		if n.tickers.Decide(t.Symbol, t) == persist.Insert {
			n.cs.Tickers = append(n.cs.Tickers, t)
			out = append(out, t)
			continue
		}
		if stored, ok := n.tickers.Lookup(t.Symbol); ok {
			out = append(out, stored)
		}
	}
	return out
}

func (n *normalizer) splitsOf(tickers []*model.Ticker, resp *b3.SplitSubscriptionResponse) {
	for _, sd := range resp.StockDividends {
		t := model.TickerForISIN(tickers, sd.AssetIssued)
		if t == nil || sd.LastDatePrior.IsZero() {
			n.log.Debug("dropping split without ticker or date", zap.String("isin", sd.AssetIssued))
			continue
		}
		s := model.Split{
			Ticker:     t,
			LastDate:   sd.LastDatePrior.Time,
			ApprovedOn: sd.ApprovedOn.Time,
			Factor:     sd.Factor.Decimal,
			Type:       sd.Label,
		}
		switch n.splits.Decide(s.Key(), struct{}{}) {
		case persist.Insert:
			n.cs.Splits = append(n.cs.Splits, s)
		case persist.Update:
			n.cs.SplitUpdates = append(n.cs.SplitUpdates, s)
		}
	}

	for _, sub := range resp.Subscriptions {
		t := model.TickerForISIN(tickers, sub.AssetIssued)
		if t == nil || sub.LastDatePrior.IsZero() {
			n.log.Debug("dropping subscription without ticker or date", zap.String("isin", sub.AssetIssued))
			continue
		}
		s := model.Subscription{
			Ticker:     t,
			LastDate:   sub.LastDatePrior.Time,
			ApprovedOn: sub.ApprovedOn.Time,
			Percentage: sub.Percentage.Decimal,
			PriceUnit:  sub.PriceUnit.Decimal,
		}
		switch n.subscriptions.Decide(s.Key(), struct{}{}) {
		case persist.Insert:
			n.cs.Subscriptions = append(n.cs.Subscriptions, s)
		case persist.Update:
			n.cs.SubscriptionUpdates = append(n.cs.SubscriptionUpdates, s)
		}
	}
}

func (n *normalizer) dividendsOf(tickers []*model.Ticker, divs map[model.EventKey]b3.DividendResult) {
	bySymbol := make(map[string]*model.Ticker, len(tickers))
	for _, t := range tickers {
		bySymbol[t.Symbol] = t
	}

	// Map order is random; sort so a run stages rows deterministically.
	keys := make([]model.EventKey, 0, len(divs))
	for k := range divs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol != keys[j].Symbol {
			return keys[i].Symbol < keys[j].Symbol
		}
		return keys[i].Day < keys[j].Day
	})

	for _, k := range keys {
		t := bySymbol[k.Symbol]
		if t == nil {
			continue
		}
		r := divs[k]
		d := model.Dividend{
			Ticker:      t,
			ApprovedOn:  r.DateApproval.Time,
			PriorExDate: r.LastDatePriorEx.Time,
			ClosePrice:  r.ClosingPricePriorExDate.Decimal,
			Type:        r.CorporateAction,
			Percentage:  r.CorporateActionPrice.Decimal,
			Value:       r.ValueCash.Decimal,
		}
		switch n.dividends.Decide(d.Key(), struct{}{}) {
		case persist.Insert:
			n.cs.Dividends = append(n.cs.Dividends, d)
		case persist.Update:
			n.cs.DividendUpdates = append(n.cs.DividendUpdates, d)
		}
	}
}
