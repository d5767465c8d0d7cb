package upstream

// This file defines explicit DTOs for every upstream payload. Each wire
// struct is named <Thing>Wire. The Fetch* methods in translocclient.go
// convert most of them to their state/domain counterparts; route-catalog,
// block-group and driver-shift rows are returned as wire values.

// RouteWire is one entry of the routes-with-shapes response.
type RouteWire struct {
	RouteID         int    `json:"RouteID"`
	Description     string `json:"Description"`
	InfoText        string `json:"InfoText"`
	MapLineColor    string `json:"MapLineColor"`
	EncodedPolyline string `json:"EncodedPolyline"`
	Stops           []StopWire `json:"Stops"`
}

// RouteCatalogWire is one entry of the simpler routes-catalog response,
// used only to discover inactive routes.
type RouteCatalogWire struct {
	RouteID int    `json:"RouteID"`
	IsActive bool  `json:"IsActive"`
}

// StopWire is one entry of the stops response.
type StopWire struct {
	StopID    string   `json:"StopID"`
	StopName  string   `json:"StopName"`
	Latitude  float64  `json:"Latitude"`
	Longitude float64  `json:"Longitude"`
	AddressID string   `json:"AddressID"`
	RouteIDs  []string `json:"RouteIDs"`
}

// VehicleWire is one entry of the vehicles response. TimeStampUTC is in
// Microsoft-AJAX form; Seconds is the provider's own report-age hint and is
// not trusted for fusion timestamps.
type VehicleWire struct {
	VehicleID   int     `json:"VehicleID"`
	Name        string  `json:"Name"`
	RouteID     *int    `json:"RouteID"`
	Latitude    float64 `json:"Latitude"`
	Longitude   float64 `json:"Longitude"`
	Heading     float64 `json:"Heading"`
	GroundSpeed float64 `json:"GroundSpeed"`
	TimeStampUTC string `json:"TimeStampUTC"`
	Seconds     int     `json:"Seconds"`
}

// CapacityWire is one entry of the vehicle-capacities response.
type CapacityWire struct {
	VehicleID        int     `json:"VehicleID"`
	Capacity         int     `json:"Capacity"`
	CurrentOccupation int    `json:"CurrentOccupation"`
	Percentage       float64 `json:"Percentage"`
}

// EstimateWire is one vehicle's batched route-stop estimate entry.
type EstimateWire struct {
	VehicleID int `json:"VehicleID"`
	Estimates []struct {
		StopID  string `json:"StopID"`
		Seconds int    `json:"Seconds"`
	} `json:"Estimates"`
}

// ScheduleCalendarWire is one entry of the schedule-calendar-by-date
// response, chained into the block-group fetch by comma-joined IDs.
type ScheduleCalendarWire struct {
	ScheduleVehicleCalendarID int `json:"ScheduleVehicleCalendarID"`
}

// BlockGroupWire is one trip of the dispatch block-group response.
type BlockGroupWire struct {
	BlockID      string `json:"BlockID"`
	BlockGroupID string `json:"BlockGroupID"`
	VehicleID    *int   `json:"VehicleID"`
	VehicleName  string `json:"VehicleName"`
	RouteID      *int   `json:"RouteID"`
	RouteName    string `json:"RouteName"`
	RouteColor   string `json:"RouteColor"`
	StartTimestamp string `json:"StartTimestamp"`
	EndTimestamp   string `json:"EndTimestamp"`
}

// AssignedShiftWire is one entry of the driver-shifts response.
type AssignedShiftWire struct {
	PositionName string `json:"POSITION_NAME"`
	FirstName    string `json:"FIRST_NAME"`
	LastName     string `json:"LAST_NAME"`
	StartDate    string `json:"START_DATE"`
	StartTime    string `json:"START_TIME"`
	EndDate      string `json:"END_DATE"`
	EndTime      string `json:"END_TIME"`
	Duration     string `json:"DURATION"`
	ColorID      int    `json:"COLOR_ID"`
}

// OnDemandPositionWire is one entry of the OnDemand positions payload.
type OnDemandPositionWire struct {
	DriverName string `json:"driver_name"`
	VehicleID  string `json:"vehicle_id"`
	CallName   string `json:"call_name"`
}
