package esi

import "time"

// Asset is one entry from a character asset list.
type Asset struct {
	ItemID          int64  `json:"item_id"`
	TypeID          int64  `json:"type_id"`
	Quantity        int64  `json:"quantity"`
	LocationID      int64  `json:"location_id"`
	LocationType    string `json:"location_type"`
	LocationFlag    string `json:"location_flag"`
	IsSingleton     bool   `json:"is_singleton"`
	IsBlueprintCopy *bool  `json:"is_blueprint_copy,omitempty"`
}

// CharacterPublic is the public sheet of a character, readable without
// authentication.
type CharacterPublic struct {
	Name           string    `json:"name"`
	CorporationID  int64     `json:"corporation_id"`
	AllianceID     *int64    `json:"alliance_id,omitempty"`
	FactionID      *int64    `json:"faction_id,omitempty"`
	Birthday       time.Time `json:"birthday"`
	BloodlineID    int64     `json:"bloodline_id"`
	RaceID         int64     `json:"race_id"`
	Gender         string    `json:"gender"`
	Description    *string   `json:"description,omitempty"`
	SecurityStatus *float64  `json:"security_status,omitempty"`
	Title          *string   `json:"title,omitempty"`
}

// Contract is a character contract.
type Contract struct {
	ContractID          int64      `json:"contract_id"`
	IssuerID            int64      `json:"issuer_id"`
	IssuerCorporationID int64      `json:"issuer_corporation_id"`
	AssigneeID          int64      `json:"assignee_id"`
	AcceptorID          int64      `json:"acceptor_id"`
	StartLocationID     int64      `json:"start_location_id"`
	EndLocationID       *int64     `json:"end_location_id,omitempty"`
	Type                string     `json:"type"`
	Status              string     `json:"status"`
	Title               *string    `json:"title,omitempty"`
	ForCorporation      bool       `json:"for_corporation"`
	Availability        string     `json:"availability"`
	DateIssued          time.Time  `json:"date_issued"`
	DateExpired         time.Time  `json:"date_expired"`
	DateAccepted        *time.Time `json:"date_accepted,omitempty"`
	DateCompleted       *time.Time `json:"date_completed,omitempty"`
	DaysToComplete      *int       `json:"days_to_complete,omitempty"`
	Price               *float64   `json:"price,omitempty"`
	Reward              *float64   `json:"reward,omitempty"`
	Collateral          *float64   `json:"collateral,omitempty"`
	Buyout              *float64   `json:"buyout,omitempty"`
	Volume              *float64   `json:"volume,omitempty"`
}

// ContractItem is one item inside a contract.
type ContractItem struct {
	RecordID    int64 `json:"record_id"`
	ContractID  int64 `json:"contract_id"`
	TypeID      int64 `json:"type_id"`
	Quantity    int64 `json:"quantity"`
	IsIncluded  bool  `json:"is_included"`
	IsSingleton bool  `json:"is_singleton"`
}

// CorporationProject is one corporation infrastructure project.
type CorporationProject struct {
	ProjectID       int64  `json:"project_id"`
	LocationID      int64  `json:"location_id"`
	BlueprintTypeID int64  `json:"blueprint_type_id"`
	Runs            int    `json:"runs"`
	Completed       int    `json:"completed"`
	Status          string `json:"status"`
}

// IndustryJob is a manufacturing, research or reaction job.
type IndustryJob struct {
	JobID                int64      `json:"job_id"`
	InstallerID          int64      `json:"installer_id"`
	FacilityID           int64      `json:"facility_id"`
	StationID            int64      `json:"station_id"`
	ActivityID           int        `json:"activity_id"`
	BlueprintID          int64      `json:"blueprint_id"`
	BlueprintTypeID      int64      `json:"blueprint_type_id"`
	BlueprintLocationID  int64      `json:"blueprint_location_id"`
	OutputLocationID     int64      `json:"output_location_id"`
	Runs                 int        `json:"runs"`
	Cost                 float64    `json:"cost"`
	LicensedRuns         *int       `json:"licensed_runs,omitempty"`
	Probability          *float64   `json:"probability,omitempty"`
	ProductTypeID        *int64     `json:"product_type_id,omitempty"`
	Status               string     `json:"status"`
	Duration             int        `json:"duration"`
	StartDate            time.Time  `json:"start_date"`
	EndDate              time.Time  `json:"end_date"`
	PauseDate            *time.Time `json:"pause_date,omitempty"`
	CompletedDate        *time.Time `json:"completed_date,omitempty"`
	CompletedCharacterID *int64     `json:"completed_character_id,omitempty"`
	SuccessfulRuns       *int       `json:"successful_runs,omitempty"`
}

// Location is where a character currently is. StationID and StructureID
// are only set while docked.
type Location struct {
	SolarSystemID int64  `json:"solar_system_id"`
	StationID     *int64 `json:"station_id,omitempty"`
	StructureID   *int64 `json:"structure_id,omitempty"`
}

// MarketOrder is a character market order.
type MarketOrder struct {
	OrderID       int64     `json:"order_id"`
	TypeID        int64     `json:"type_id"`
	LocationID    int64     `json:"location_id"`
	RegionID      int64     `json:"region_id"`
	VolumeTotal   int64     `json:"volume_total"`
	VolumeRemain  int64     `json:"volume_remain"`
	MinVolume     int64     `json:"min_volume"`
	Price         float64   `json:"price"`
	IsBuyOrder    *bool     `json:"is_buy_order,omitempty"`
	Duration      int       `json:"duration"`
	Issued        time.Time `json:"issued"`
	Range         string    `json:"range"`
	State         string    `json:"state"`
	IsCorporation bool      `json:"is_corporation"`
	Escrow        *float64  `json:"escrow,omitempty"`
}

// MarketPrice is the global adjusted/average price pair for a type.
type MarketPrice struct {
	TypeID        int64    `json:"type_id"`
	AdjustedPrice *float64 `json:"adjusted_price,omitempty"`
	AveragePrice  *float64 `json:"average_price,omitempty"`
}

// Skill is one trained skill.
type Skill struct {
	SkillID            int64 `json:"skill_id"`
	SkillpointsInSkill int64 `json:"skillpoints_in_skill"`
	TrainedSkillLevel  int   `json:"trained_skill_level"`
	ActiveSkillLevel   int   `json:"active_skill_level"`
}

// CharacterSkills is the full trained-skill sheet.
type CharacterSkills struct {
	Skills        []Skill `json:"skills"`
	TotalSP       int64   `json:"total_sp"`
	UnallocatedSP *int64  `json:"unallocated_sp,omitempty"`
}

// NameRef resolves an ID to its name and category.
type NameRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// JournalEntry is one wallet journal line.
type JournalEntry struct {
	ID            int64     `json:"id"`
	Date          time.Time `json:"date"`
	RefType       string    `json:"ref_type"`
	FirstPartyID  int64     `json:"first_party_id"`
	SecondPartyID *int64    `json:"second_party_id,omitempty"`
	Amount        float64   `json:"amount"`
	Balance       float64   `json:"balance"`
	Reason        *string   `json:"reason,omitempty"`
	Description   string    `json:"description"`
	ContextID     *int64    `json:"context_id,omitempty"`
	ContextIDType *string   `json:"context_id_type,omitempty"`
}

// Transaction is one wallet market transaction.
type Transaction struct {
	TransactionID int64     `json:"transaction_id"`
	Date          time.Time `json:"date"`
	TypeID        int64     `json:"type_id"`
	Quantity      int64     `json:"quantity"`
	UnitPrice     float64   `json:"unit_price"`
	ClientID      int64     `json:"client_id"`
	LocationID    int64     `json:"location_id"`
	IsBuy         bool      `json:"is_buy"`
	IsPersonal    bool      `json:"is_personal"`
	JournalRefID  int64     `json:"journal_ref_id"`
}

// Position is a point in space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Structure is a player-owned structure. Resolving one requires docking
// access, so lookups fail with 401 for characters outside the ACL.
type Structure struct {
	Name          string    `json:"name"`
	OwnerID       int64     `json:"owner_id"`
	SolarSystemID int64     `json:"solar_system_id"`
	TypeID        *int64    `json:"type_id,omitempty"`
	Position      *Position `json:"position,omitempty"`
}
