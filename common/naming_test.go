package common

import (
	"testing"
)

func checkKeyValue(t *testing.T, format map[string]string, key, value string) {
	if v, ok := format[key]; !ok {
		t.Errorf("key %s not found", key)
	} else if v != value {
		t.Errorf("expected %s for key %s, got %s", value, key, v)
	}
}

func TestInfo(t *testing.T) {
	if _, err := Info("S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T12485"); err == nil {
		t.Errorf("too short file name")
	}
	if _, err := Info("S1A_IW_SLC__1SDV_20190115T170106_20190115T170133_025491_02D361_7F7C"); err == nil {
		t.Errorf("unsupported constellation")
	}
	if format, err := Info("S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859.SAFE"); err != nil {
		t.Errorf(err.Error())
	} else {
		checkKeyValue(t, format, "MISSION_ID", "S2B")
		checkKeyValue(t, format, "PRODUCT_LEVEL", "L1C")
		checkKeyValue(t, format, "DATE", "20190108")
		checkKeyValue(t, format, "YEAR", "2019")
		checkKeyValue(t, format, "MONTH", "01")
		checkKeyValue(t, format, "DAY", "08")
		checkKeyValue(t, format, "TIME", "104429")
		checkKeyValue(t, format, "PDGS", "0207")
		checkKeyValue(t, format, "ORBIT", "008")
		checkKeyValue(t, format, "TILE", "T32UNF")
	}
}

func TestProductName(t *testing.T) {
	id := "S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859"
	if name := ProductName(id + ".SAFE"); name != id {
		t.Errorf("expected %s, got %s", id, name)
	}
	if name := ProductName(id); name != id {
		t.Errorf("expected %s, got %s", id, name)
	}
}

func TestSCLFileName(t *testing.T) {
	id := "S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859"
	if name := SCLFileName(id + ".SAFE"); name != id+"_SCL.tif" {
		t.Errorf("unexpected scl file name: %s", name)
	}
}

func TestGetDateFromProductId(t *testing.T) {
	date, err := GetDateFromProductId("S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859.SAFE")
	if err != nil {
		t.Fatal(err)
	}
	if date.Format("2006-01-02") != "2019-01-08" {
		t.Errorf("unexpected date: %s", date)
	}
}
