// Package domain models the two datasets behind the hurricane impact report:
// World Bank development indicators and EM-DAT disaster events.
//
// # Development Indicators
//
// Indicator observations come from the World Bank API (source 2 is World
// Development Indicators). The provider labels time periods with a prefix and a
// four digit year:
//
//	"YR2020"  →  2020
//
// Observations are reshaped into a wide [IndicatorTable]: one row per indicator
// code, one column per year, years contiguous and ascending. A missing value is
// stored as NaN; a recorded zero is a real zero and never counts as missing.
//
// # Cleaning Rules
//
// [TransformIndicators] applies, in order:
//
//	column selection   identity columns plus years in [MinYear, MaxYear]
//	density filter     drop a row with more than floor(N * fraction) gaps
//	all-zero filter    drop a row whose every value is exactly 0
//	gap resolution     linear interior interpolation, backward fill, forward fill
//
// The default density fraction is 0.5, so with 17 year columns a row with 8
// gaps is kept and a row with 9 is dropped.
//
// # Disaster Events
//
// EM-DAT rows are one recorded event each. The columns used are:
//
//	ISO                 ISO 3166-1 alpha-3 country code
//	Start Year          year the event began
//	Magnitude Scale     unit of Magnitude; "Kph" for storms
//	Magnitude           peak wind speed for storms
//	Total Affected      injured + affected + homeless
//	Event Name          storm name, e.g. "Hurricane Maria"
//	OFDA/BHA Response   "Yes" when US foreign aid was recorded
//
// A major hurricane is a storm measured in Kph at 178 or above, the lower
// bound of Saffir-Simpson category 3. See [DisasterFilter].
package domain
