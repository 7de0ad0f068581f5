// Package domain assembles the ticket sales fact table from three raw sources:
// per-seat ticket sales, per-section venue capacity and hourly venue weather.
//
// # Sources
//
// Ticket sales arrive as one row per purchase (event_date, section, row, seat,
// ticket_price, purchase_channel, acct_id, num_tickets, total_spend). Section
// capacity arrives as one row per (event_date, section). Neither carries a
// market: both are recorded for the home venue and are stamped with every
// entry of the market dimension (see [ReplicateCapacity] and [StampMarkets]).
// Weather arrives as hourly Open-Meteo observations tagged with market and
// venue names.
//
// # Normalization
//
// Column headers are trimmed, lower-cased and have spaces replaced by
// underscores. Section names are title-cased with inner whitespace collapsed so
// "lower  bowl 101" and "Lower Bowl 101" join. Cells that cannot be parsed as a
// number, date or timestamp become missing ([Opt]) and are counted as
// [WarnCoercion] on the [RunContext]; parsing never aborts a stage.
//
// # Grains and joins
//
//	sales aggregate:  (event_date, market, venue_id, venue, section)
//	capacity:         (event_date, market, venue_id, section)
//	daily weather:    (event_date, market, country, venue_id, venue)
//	fact:             (event_date, market, venue_id, section)
//
// Every table used as the "one" side of a join is checked with [CheckUnique]
// first. A duplicate key is a hard error ([DuplicateKeyError]) because the join
// would silently multiply sales rows.
//
// # Weather flags
//
//	windy:    wind_mps  >= 8.0
//	rainy:    precip_mm >  0.0
//	freezing: temp_c    <= 0.0
//
// A missing reading never sets a flag.
//
// # Output
//
// All emitted tables are sorted by date first with missing dates last, and
// numbers are rendered with the shortest exact decimal form, so identical
// inputs produce byte-identical files.
package domain
