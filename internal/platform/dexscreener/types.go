package dexscreener

import "github.com/alanyoungcy/dexbot/internal/domain"

// APIPair mirrors the pair object returned by the DexScreener REST API.
type APIPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD string `json:"priceUsd"`
	Volume   struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// APIBoost mirrors one entry of the token-boosts endpoints.
type APIBoost struct {
	ChainID      string `json:"chainId"`
	TokenAddress string `json:"tokenAddress"`
}

// searchResponse wraps the /latest/dex/search payload.
type searchResponse struct {
	Pairs []APIPair `json:"pairs"`
}

// ToDomainPair converts an API pair into the domain representation.
func (p APIPair) ToDomainPair() domain.Pair {
	return domain.Pair{
		TokenAddress:   p.BaseToken.Address,
		Symbol:         p.BaseToken.Symbol,
		Chain:          p.ChainID,
		PriceUSD:       parsePrice(p.PriceUSD),
		Volume24hUSD:   p.Volume.H24,
		LiquidityUSD:   p.Liquidity.USD,
		PriceChange24h: p.PriceChange.H24,
	}
}
