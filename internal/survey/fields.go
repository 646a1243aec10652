package survey

// Field keynames of the water-source resource in the feature store. These are
// the external store's actual column names and are part of its contract.
const (
	fieldName          = "name"
	fieldLocality      = "Поселение"
	fieldStreet        = "Улица"
	fieldBuilding      = "Дом"
	fieldLandmark      = "Ориентир"
	fieldSpecification = "Исполнение"
	fieldFlowRate      = "Водоотдача_сети"
	fieldDriveFolder   = "ИД_папки_Гугл_диск"
	fieldStreetView    = "Ссылка_Гугл_улицы"
	fieldOrganization  = "ИД_хоз_субъекта"
	fieldOrgName       = "Хоз_субъект"
	fieldDescription   = "description"
)

// Field keynames of the checkup resource.
const (
	fieldCheckupPoint    = "id_wi_point"
	fieldCheckupControl  = "checkout"
	fieldCheckupWater    = "water"
	fieldCheckupInstall  = "workable"
	fieldCheckupAccess   = "entrance"
	fieldCheckupPlate    = "plate_exist"
	fieldCheckupDateTime = "date_time"
	fieldCheckupID       = "id"
)
