package domain

// Maximum encoded sizes per stored value type. Raising a bound is compatible;
// lowering one can strand records that no longer fit.
const (
	MaxProducerEncodedSize           = 16_384
	MaxInvestorEncodedSize           = 4_096
	MaxSupplyAgriBusinessEncodedSize = 16_384
	MaxFarmsAgriBusinessEncodedSize  = 1_024
	MaxOrderEncodedSize              = 4_096

	// MaxFileNameLength bounds StoredFile keys.
	MaxFileNameLength = 1_024
	// MaxFileSize bounds StoredFile payloads.
	MaxFileSize = 512_000
)
