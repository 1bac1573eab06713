package types

// TariffSource says whether a tariff came from the user's settings or from
// the tiered schedule.
type TariffSource string

const (
	TariffSourceManual     TariffSource = "manual"
	TariffSourceCalculated TariffSource = "calculated"
)

// TariffPolicy names how historical months were priced in a report.
type TariffPolicy string

const (
	// TariffPolicyCurrent prices every month with today's effective rate.
	TariffPolicyCurrent TariffPolicy = "current"
	// TariffPolicyPerMonth re-evaluates protection and rate for each month
	// using that month's own trailing window.
	TariffPolicyPerMonth TariffPolicy = "per-month"
)

// DeviceUsage is the usage of one device over a period.
type DeviceUsage struct {
	DeviceID string  `json:"device_id"`
	Name     string  `json:"name"`
	Room     string  `json:"room,omitempty"`
	KWH      float64 `json:"kwh"`
	CostPKR  Amount  `json:"cost_pkr"`
}

// TodaySummary is the response type for the today summary endpoint.
type TodaySummary struct {
	Date             string        `json:"date"`
	Timezone         string        `json:"timezone"`
	Tariff           Rate          `json:"tariff_pkr_per_kwh"`
	TariffSource     TariffSource  `json:"tariff_source"`
	Devices          []DeviceUsage `json:"devices"`
	HomeTotalKWH     float64       `json:"home_total_kwh"`
	HomeTotalCostPKR Amount        `json:"home_total_cost_pkr"`
}

// MonthUsage is the home total usage of one calendar month.
type MonthUsage struct {
	Month string  `json:"month"`
	KWH   float64 `json:"kwh"`
}

// TariffCalculation is the response type for the tariff calculator.
type TariffCalculation struct {
	CalculatedTariff    Rate         `json:"calculated_tariff"`
	IsProtected         bool         `json:"is_protected"`
	InsufficientHistory bool         `json:"insufficient_history"`
	HistoryMonths       int          `json:"history_months"`
	CurrentMonthKWH     float64      `json:"current_month_units"`
	MonthlyUsage        []MonthUsage `json:"monthly_usage"`
	Message             string       `json:"message,omitempty"`
}

// MonthBucket is one month of a monthly report. It is derived and never
// stored.
type MonthBucket struct {
	Month     string  `json:"month"`
	MonthName string  `json:"month_name"`
	KWH       float64 `json:"kwh"`
	CostPKR   Amount  `json:"cost_pkr"`
	Tariff    Rate    `json:"tariff_pkr_per_kwh"`
	SolarKWH  float64 `json:"solar_kwh"`
	GridKWH   float64 `json:"grid_kwh"`
}

// MonthlyReports is the response type for the monthly reports endpoint.
type MonthlyReports struct {
	MonthlyReports     []MonthBucket `json:"monthly_reports"`
	TotalKWH           float64       `json:"total_kwh"`
	TotalCostPKR       Amount        `json:"total_cost_pkr"`
	AverageMonthlyKWH  float64       `json:"average_monthly_kwh"`
	AverageMonthlyCost Amount        `json:"average_monthly_cost"`
	DeviceBreakdown    []DeviceUsage `json:"device_breakdown"`
	SolarKWH           float64       `json:"solar_kwh"`
	GridKWH            float64       `json:"grid_kwh"`
	Tariff             Rate          `json:"tariff_pkr_per_kwh"`
	TariffSource       TariffSource  `json:"tariff_source"`
	TariffPolicy       TariffPolicy  `json:"tariff_policy"`
}
