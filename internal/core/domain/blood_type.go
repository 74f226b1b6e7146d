package domain

type BloodType string

const (
	BloodTypeAPos  BloodType = "A+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeABPos BloodType = "AB+"
	BloodTypeABNeg BloodType = "AB-"
	BloodTypeOPos  BloodType = "O+"
	BloodTypeONeg  BloodType = "O-"
)

var BloodTypes = []BloodType{
	BloodTypeAPos, BloodTypeANeg,
	BloodTypeBPos, BloodTypeBNeg,
	BloodTypeABPos, BloodTypeABNeg,
	BloodTypeOPos, BloodTypeONeg,
}

func (b BloodType) Valid() bool {
	for _, t := range BloodTypes {
		if b == t {
			return true
		}
	}
	return false
}

func (b BloodType) String() string {
	return string(b)
}
