package models

// AccountBalance is the native-currency balance of one stake address, in lovelace
type AccountBalance struct {
	StakeAddress string `json:"stakeAddress"`
	TotalBalance string `json:"totalBalance"`
}

// AccountAsset is one native token held by a stake address
type AccountAsset struct {
	StakeAddress string `json:"stakeAddress"`
	// Unit is the policy id followed by the hex asset name
	Unit        string `json:"unit"`
	RawQuantity string `json:"rawQuantity"`
	Decimals    *int   `json:"decimals,omitempty"`
}
