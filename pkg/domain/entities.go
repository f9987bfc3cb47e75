// Package domain defines the participant records, value types, loan lifecycle
// helpers, and error taxonomy shared by farmvault packages.
package domain

import "time"

// Identity is the opaque handle of the caller that owns a record.
type Identity string

// Anonymous is the zero identity; it never owns a participant record.
const Anonymous Identity = ""

// EntityType identifies the kind of record held by the store.
type EntityType string

// Supported entity types. The first four are participant kinds.
const (
	// EntityProducer identifies a producer (farm) record.
	EntityProducer EntityType = "producer"
	// EntityInvestor identifies an investor record.
	EntityInvestor EntityType = "investor"
	// EntitySupplyAgriBusiness identifies an input-supplying agribusiness.
	EntitySupplyAgriBusiness EntityType = "supply_agribusiness"
	// EntityFarmsAgriBusiness identifies an agribusiness that manages farms.
	EntityFarmsAgriBusiness EntityType = "farms_agribusiness"
	// EntityManagedFarm identifies a farm held on behalf of a farms agribusiness.
	EntityManagedFarm EntityType = "managed_farm"
	// EntityOrder identifies a supply order.
	EntityOrder EntityType = "order"
	// EntityFile identifies a stored file.
	EntityFile EntityType = "file"
	// EntityNone is reported for identities that own no participant record.
	EntityNone EntityType = "not_registered"
)

// ParticipantTypes lists the participant kinds in uniqueness-scan order.
var ParticipantTypes = []EntityType{
	EntityProducer,
	EntityInvestor,
	EntitySupplyAgriBusiness,
	EntityFarmsAgriBusiness,
}

// TokenCollateral describes collateral pledged by a producer.
type TokenCollateral struct {
	Currency string `json:"currency"`
	Amount   uint64 `json:"amount"`
}

// FarmAsset records a held input and its accumulated value.
type FarmAsset struct {
	Name     string `json:"name"`
	Quantity uint64 `json:"quantity"`
	Value    uint64 `json:"value"`
}

// FinancialReport is a producer-authored financial summary.
type FinancialReport struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights,omitempty"`
}

// FarmReport is an operational report split into sections.
type FarmReport struct {
	Title    string          `json:"title"`
	Sections []ReportSection `json:"sections,omitempty"`
}

// ReportSection is one titled block of a FarmReport.
type ReportSection struct {
	Title   string   `json:"title"`
	Content *string  `json:"content,omitempty"`
	Items   []string `json:"items,omitempty"`
}

// Producer is a registered farm together with its loan lifecycle block.
//
// Loaned implies a previously accepted CurrentLoanAsk and a set LoanStartTime.
type Producer struct {
	ID              uint64           `json:"id"`
	Owner           Identity         `json:"owner"`
	FarmerName      string           `json:"farmer_name"`
	FarmName        string           `json:"farm_name"`
	FarmDescription string           `json:"farm_description"`
	Verified        bool             `json:"verified"`
	KYCJobID        *string          `json:"kyc_job_id,omitempty"`
	TokenCollateral *TokenCollateral `json:"token_collateral,omitempty"`
	FarmAssets      []FarmAsset      `json:"farm_assets,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
	AmountInvested  *uint64          `json:"amount_invested,omitempty"`
	AgriBusiness    string           `json:"agri_business,omitempty"`
	Insured         *bool            `json:"insured,omitempty"`
	Published       bool             `json:"publish"`
	IFarmTokens     *uint64          `json:"ifarm_tokens,omitempty"`
	Images          []string         `json:"images,omitempty"`

	FinancialReports []FinancialReport `json:"financial_reports,omitempty"`
	FarmReports      []FarmReport      `json:"farm_reports,omitempty"`

	CreditScore                 *uint64        `json:"credit_score,omitempty"`
	CurrentLoanAsk              *uint64        `json:"current_loan_ask,omitempty"`
	Loaned                      bool           `json:"loaned"`
	FundingRoundStartTime       *time.Time     `json:"funding_round_start_time,omitempty"`
	TimeForFundingRoundToExpire *time.Duration `json:"time_for_funding_round_to_expire,omitempty"`
	LoanStartTime               *time.Time     `json:"loan_start_time,omitempty"`
	LoanMaturity                *time.Duration `json:"loan_maturity,omitempty"`
}

// NewProducer carries the caller-supplied fields for producer registration.
type NewProducer struct {
	FarmerName      string `json:"farmer_name"`
	FarmName        string `json:"farm_name"`
	FarmDescription string `json:"farm_description"`
}

// Validate reports every empty required field.
func (n NewProducer) Validate() error {
	return requireFields(EntityProducer, map[string]string{
		"farmer_name":      n.FarmerName,
		"farm_name":        n.FarmName,
		"farm_description": n.FarmDescription,
	})
}

// Investor funds producers and may bookmark farms.
type Investor struct {
	ID         uint64   `json:"id"`
	Owner      Identity `json:"owner"`
	Name       string   `json:"name"`
	Verified   bool     `json:"verified"`
	SavedFarms []uint64 `json:"saved_farms,omitempty"`
	KYCJobID   *string  `json:"kyc_job_id,omitempty"`
}

// NewInvestor carries the caller-supplied fields for investor registration.
type NewInvestor struct {
	Name string `json:"name"`
}

// Validate reports every empty required field.
func (n NewInvestor) Validate() error {
	return requireFields(EntityInvestor, map[string]string{"name": n.Name})
}

// Product is one catalogue line offered by a supply agribusiness.
type Product struct {
	ItemName         string   `json:"item_name"`
	Amount           uint64   `json:"amount"`
	Tags             []string `json:"tags,omitempty"`
	ProductVariation string   `json:"product_variation"`
	Price            uint64   `json:"price"`
}

// SupplyAgriBusiness sells inputs to producers.
type SupplyAgriBusiness struct {
	ID       uint64    `json:"id"`
	Owner    Identity  `json:"owner"`
	Name     string    `json:"agribusiness_name"`
	Items    []Product `json:"items_to_be_supplied,omitempty"`
	OrderIDs []uint64  `json:"orders,omitempty"`
	Verified bool      `json:"verified"`
	KYCJobID *string   `json:"kyc_job_id,omitempty"`
}

// NewSupplyAgriBusiness carries the registration fields for a supplier.
type NewSupplyAgriBusiness struct {
	Name  string    `json:"agribusiness_name"`
	Items []Product `json:"items_to_be_supplied,omitempty"`
}

// Validate reports every empty required field.
func (n NewSupplyAgriBusiness) Validate() error {
	return requireFields(EntitySupplyAgriBusiness, map[string]string{"agribusiness_name": n.Name})
}

// FarmsAgriBusiness manages farms on behalf of smallholders.
type FarmsAgriBusiness struct {
	ID           uint64   `json:"id"`
	Owner        Identity `json:"owner"`
	Name         string   `json:"agribusiness_name"`
	TotalFarmers uint64   `json:"total_farmers"`
	Verified     bool     `json:"verified"`
	KYCJobID     *string  `json:"kyc_job_id,omitempty"`
}

// NewFarmsAgriBusiness carries the registration fields for a farms agribusiness.
type NewFarmsAgriBusiness struct {
	Name         string `json:"agribusiness_name"`
	TotalFarmers uint64 `json:"total_farmers"`
}

// Validate reports every empty required field.
func (n NewFarmsAgriBusiness) Validate() error {
	return requireFields(EntityFarmsAgriBusiness, map[string]string{"agribusiness_name": n.Name})
}
