package types

// UpgradeType names a stat that upgrade items scale.
type UpgradeType string

const (
	UpgradeSpeed        UpgradeType = "speed"
	UpgradePowerStorage UpgradeType = "power_storage"
	UpgradePowerUsage   UpgradeType = "power_usage"
	UpgradeOutput       UpgradeType = "output"
	UpgradeFail         UpgradeType = "fail"
	UpgradeRange        UpgradeType = "range"
)

var UpgradeTypes = []UpgradeType{
	UpgradeSpeed, UpgradePowerStorage, UpgradePowerUsage, UpgradeOutput, UpgradeFail, UpgradeRange,
}

func (u UpgradeType) IsValid() bool {
	for _, t := range UpgradeTypes {
		if t == u {
			return true
		}
	}
	return false
}
