package geocoding

type nominatimAddress struct {
	HouseNumber   string `json:"house_number"`
	HouseName     string `json:"house_name"`
	Road          string `json:"road"`
	Suburb        string `json:"suburb"`
	CityDistrict  string `json:"city_district"`
	Neighbourhood string `json:"neighbourhood"`
	Quarter       string `json:"quarter"`
	Postcode      string `json:"postcode"`
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	Municipality  string `json:"municipality"`
	Hamlet        string `json:"hamlet"`
	State         string `json:"state"`
	Country       string `json:"country"`
	CountryCode   string `json:"country_code"`
}

// nominatimPlace mirrors the relevant parts of the OSM search and reverse payloads.
type nominatimPlace struct {
	DisplayName string           `json:"display_name"`
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	BoundingBox []string         `json:"boundingbox"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error,omitempty"`
}
