// Package domain models European Ground Motion Service (EGMS) Level 3 tiles and
// the point datasets extracted from them.
//
// # Data Source
//
// EGMS publishes ortho (L3) ground-motion products as 100x100 km tiles on the
// ETRS89-LAEA grid (EPSG:3035). A tile is addressed by its east and north grid
// indices, e.g. E32N31 covers easting 3,200,000-3,300,000 m and northing
// 3,100,000-3,200,000 m. The archive service returns one zip per tile,
// displacement component and year range:
//
//	EGMS_L3_E32N31_100km_U_2019_2023_1.zip
//	└── EGMS_L3_E32N31_100km_U_2019_2023_1.csv
//
// Displacement components:
//
//	E: east-west motion
//	U: vertical (up-down) motion
//
// Year ranges follow the EGMS release cycle: 2018_2022, 2019_2023, 2020_2024.
//
// # Point Tables
//
// Extracted CSV files carry one measurement point per row. Only three columns
// matter here and they are looked up by name, case-insensitively:
//
//	pid       point identifier
//	easting   EPSG:3035 easting in metres
//	northing  EPSG:3035 northing in metres
//
// All other columns (velocities, time series samples) are ignored.
//
// # Enrichment
//
// Enriched tables have the fixed header point_id,easting,northing,location.
// The location column is never empty: it holds a place label such as
// "Lisbon, Portugal" or one of the sentinels [LocationUnknown] and
// [LocationGeocodingError].
package domain
