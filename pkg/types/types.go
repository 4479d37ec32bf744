package types

// Vendor ids accepted in the System store key. One vendor is active at a time.
const (
	VendorEnphaseLocal  = "enphase-local"
	VendorEnphaseRemote = "enphase-remote"
	VendorFronius       = "fronius"
	VendorSolarEdge     = "solaredge"
	VendorGinlong       = "ginlong"
	VendorPVOutput      = "pvoutput"
	VendorSolax         = "solax"
	VendorSolarman      = "solarman"
)

// Store keys, namespaced per meter device.
const (
	KeySystem      = "System"
	KeyEnabled     = "Enabled"
	KeyDayInterval = "DayInterval"
	KeyMinInterval = "MinInterval"

	// serialized rolling series
	KeyWeeklyDaily   = "WeeklyDaily"
	KeyMonthlyDaily  = "MonthlyDaily"
	KeyYearlyMonthly = "YearlyMonthly"

	// canonical metrics
	KeyWatts       = "Watts"
	KeyDayKWH      = "DayKWH"
	KeyWeekKWH     = "WeekKWH"
	KeyMonthKWH    = "MonthKWH"
	KeyYearKWH     = "YearKWH"
	KeyLifeKWH     = "LifeKWH"
	KeyLastRefresh = "LastRefresh"
	KeyLastUpdate  = "LastUpdate"
	KeyHTTPCode    = "HttpCode"
	KeyStatus      = "Status"

	// vendor configuration
	KeyIP       = "IP"
	KeyDeviceID = "DeviceID"
	KeyAPIKey   = "Key"
	KeyUserID   = "UserID"
	KeySystemID = "SystemID"
	KeyToken    = "Token"

	// auxiliary telemetry written directly by adapters
	KeyACVolts        = "ACVolts"
	KeyACAmps         = "ACAmps"
	KeyDCVolts        = "DCVolts"
	KeyDCAmps         = "DCAmps"
	KeyInverterStatus = "InverterStatus"
	KeyTemperature    = "Temperature"
	KeyBatterySOC     = "BatterySOC"
	KeyGridStatus     = "GridStatus"
	KeyGridWatts      = "GridWatts"
	KeyBatteryStatus  = "BatteryStatus"
	KeyBatteryWatts   = "BatteryWatts"
	KeyHouseWatts     = "HouseWatts"
)

// Sub-meter device suffixes appended to the meter device id for fan-out.
const (
	SubMeterHouse      = "house"
	SubMeterGridIn     = "grid-in"
	SubMeterGridOut    = "grid-out"
	SubMeterBatteryIn  = "battery-in"
	SubMeterBatteryOut = "battery-out"
)

// Three-state flow statuses. The sign of a vendor-reported power-flow figure
// encodes direction; adapters map it to one of these plus an unsigned
// magnitude instead of passing the signed value through.
const (
	FlowStatic             = "Static"
	GridStatusBuy          = "Buy"
	GridStatusSell         = "Sell"
	BatteryStatusCharge    = "Charge"
	BatteryStatusDischarge = "Discharge"
)

// Reading is the normalized output of any vendor adapter for one poll.
// Fields the vendor did not supply stay absent; absent fields are never
// written to the store.
type Reading struct {
	// Timestamp is the authoritative sample time in seconds since epoch. The
	// orchestrator only treats it as new when watts or day energy changed.
	Timestamp int64

	Watts    OptFloat
	DayKWH   OptFloat
	WeekKWH  OptFloat
	MonthKWH OptFloat
	YearKWH  OptFloat
	LifeKWH  OptFloat

	Aux Aux
}

// Aux carries vendor-specific extensions beyond the canonical reading, used
// for sub-meter fan-out. AC/DC electrical figures and the like are written to
// the store by the adapter itself.
type Aux struct {
	GridStatus    string
	GridWatts     OptFloat
	BatteryStatus string
	BatteryWatts  OptFloat
	BatterySOC    OptFloat
	HouseWatts    OptFloat

	HouseDayKWH      OptFloat
	GridInDayKWH     OptFloat
	GridOutDayKWH    OptFloat
	BatteryInDayKWH  OptFloat
	BatteryOutDayKWH OptFloat
}

// PollingState is the process-wide poll bookkeeping, exposed via the status
// server and mutated once per cycle.
type PollingState struct {
	Vendor         string `json:"vendor"`
	ContinuousPoll bool   `json:"continuousPoll"`
	LastRefresh    int64  `json:"lastRefresh"`
	LastHTTPCode   int    `json:"lastHTTPCode"`
	LastStatus     string `json:"lastStatus"`
	Polling        bool   `json:"polling"`
}
