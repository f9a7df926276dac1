package dispatch

const (
	cryptoActionWeight = 0.38
	cryptoSymbolWeight = 0.34
	cryptoQtyWeight    = 0.12
	cryptoPriceWeight  = 0.08
)

// matchCrypto detects an action verb (buy/sell/swap/hold), a ticker from the
// known-symbol set and, optionally, a quantity and a unit price. Strict
// parameters require action + symbol; quantity and price are enrichments.
func (d *Dispatcher) matchCrypto(tokens []string) matchResult {
	res := matchResult{module: ModuleCrypto, reasons: []string{"matcher=crypto"}}
	ex := &res.extracted

	symbolIdx := -1
	for i, tok := range tokens {
		if ex.CryptoAction == "" {
			if action, ok := d.lex.CryptoAction(tok); ok {
				ex.CryptoAction = action
				ex.Keywords = append(ex.Keywords, tok)
				continue
			}
		}
		if ex.CryptoSymbol == "" {
			if sym, ok := d.lex.CryptoSymbol(tok); ok {
				ex.CryptoSymbol = sym
				symbolIdx = i
			}
		}
	}

	if symbolIdx > 0 {
		if qty, ok := parseAmountToken(tokens[symbolIdx-1]); ok {
			ex.CryptoAmount = &qty
		}
	}
	// Unit price reads as "<symbol> a|@|por <number>", optionally followed by
	// a currency token.
	if symbolIdx >= 0 && symbolIdx+2 < len(tokens) {
		sep := tokens[symbolIdx+1]
		if sep == "a" || sep == "@" || sep == "por" {
			if price, ok := parseAmountToken(tokens[symbolIdx+2]); ok {
				ex.CryptoPrice = &price
				if symbolIdx+3 < len(tokens) {
					if code, ok := d.lex.Currency(tokens[symbolIdx+3]); ok {
						ex.Currency = code
					}
				}
			}
		}
	}

	conf := 0.0
	if ex.CryptoAction != "" {
		conf += cryptoActionWeight
		res.reasons = append(res.reasons, "action="+ex.CryptoAction)
	} else {
		res.missing = append(res.missing, "crypto_action")
		res.reasons = append(res.reasons, "action_missing")
	}
	if ex.CryptoSymbol != "" {
		conf += cryptoSymbolWeight
		res.reasons = append(res.reasons, "symbol="+ex.CryptoSymbol)
	} else {
		res.missing = append(res.missing, "crypto_symbol")
		res.reasons = append(res.reasons, "symbol_missing")
	}
	if ex.CryptoAmount != nil {
		conf += cryptoQtyWeight
		res.reasons = append(res.reasons, "quantity_present")
	}
	if ex.CryptoPrice != nil {
		conf += cryptoPriceWeight
		res.reasons = append(res.reasons, "price_present")
	}

	res.conf = conf
	res.strict = ex.CryptoAction != "" && ex.CryptoSymbol != ""
	return res
}
