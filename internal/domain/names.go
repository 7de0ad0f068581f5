package domain

// Table names. File-backed stores use them as file stems.
const (
	RawTicketSalesTable     = "ticket_sales"
	RawSectionCapacityTable = "section_capacity"
	RawWeatherHourlyTable   = "weather_hourly"

	DimMarketTable     = "dim_market"
	CapacityCleanTable = "section_capacity_clean"
	SalesCleanAllTable = "ticket_sales_clean_all_markets"
	HourlyTidyTable    = "weather_hourly_tidy"
	DailyWeatherTable  = "weather_daily_by_venue"
	FactTableName      = "fact_ticket_sales_with_weather"

	salesCleanTablePrefix = "ticket_sales_clean_"
)

// SalesCleanTableFor names the cleaned sales table of one market.
func SalesCleanTableFor(venueID string) string {
	return salesCleanTablePrefix + venueID
}
