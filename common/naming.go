package common

import (
	"fmt"
	"strings"
	"time"
)

// Constellation defines the kind of satellites
type Constellation int

const (
	Unknown   Constellation = iota
	Sentinel2               // MMM_MSILLL_YYYYMMDDTHHMMSS_Nxxyy_ROOO_Txxxxx_<Product Discriminator>.SAFE
)

// Level is the processing level of a Sentinel-2 product.
type Level string

const (
	LevelL1C Level = "L1C" // top-of-atmosphere radiance
	LevelL2A Level = "L2A" // atmospherically corrected surface reflectance, carries the SCL band
)

// GetConstellationFromProductId returns the constellation of a product identifier
func GetConstellationFromProductId(productID string) Constellation {
	if strings.HasPrefix(productID, "S2") {
		return Sentinel2
	}
	return Unknown
}

// ProductName returns the identifier without the trailing .SAFE extension
func ProductName(productID string) string {
	return strings.TrimSuffix(productID, ".SAFE")
}

// SCLFileName returns the local file name of the derived cloud-mask raster
func SCLFileName(productID string) string {
	return ProductName(productID) + "_SCL.tif"
}

func GetDateFromProductId(productID string) (time.Time, error) {
	format, err := Info(productID)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse("20060102", fmt.Sprintf("%s%s%s", format["YEAR"], format["MONTH"], format["DAY"]))
}

func Info(productID string) (map[string]string, error) {
	if GetConstellationFromProductId(productID) != Sentinel2 {
		return nil, fmt.Errorf("Info: constellation not supported")
	}
	if len(productID) < len("MMM_MSIXXX_YYYYMMDDTHHMMSS_Nxxyy_ROOO_Txxxxx_<Product Disc.>") {
		return nil, fmt.Errorf("invalid Sentinel2 file name: " + productID)
	}
	return map[string]string{
		"SCENE":           productID,
		"MISSION_ID":      productID[0:3],
		"MISSION_VERSION": productID[2:3],
		"PRODUCT_LEVEL":   productID[7:10],
		"DATE":            productID[11:19],
		"YEAR":            productID[11:15],
		"MONTH":           productID[15:17],
		"DAY":             productID[17:19],
		"TIME":            productID[20:26],
		"HOUR":            productID[20:22],
		"MINUTE":          productID[22:24],
		"SECOND":          productID[24:26],
		"PDGS":            productID[28:32],
		"ORBIT":           productID[34:37],
		"TILE":            productID[38:44],
		"LATITUDE_BAND":   productID[39:41],
		"GRID_SQUARE":     productID[41:42],
		"GRANULE_ID":      productID[42:44],
		"PRODUCT_DISC":    productID[45:60],
	}, nil
}
