package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AppRecord is the persisted lifecycle entity for one packaged
// application. ProductID is the identity key across versions; at most
// one record may carry a given ProductID.
type AppRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID string    `gorm:"column:product_id;not null;uniqueIndex" json:"product_id"`
	Title     string    `gorm:"column:title;not null" json:"title"`
	Version   string    `gorm:"column:version;not null" json:"version"`
	Status    string    `gorm:"column:status;not null;default:'New'" json:"status"`

	IsClientSideSolution  bool   `gorm:"column:is_client_side_solution" json:"is_client_side_solution"`
	IsDomainIsolated      bool   `gorm:"column:is_domain_isolated" json:"is_domain_isolated"`
	SkipFeatureDeployment bool   `gorm:"column:skip_feature_deployment" json:"skip_feature_deployment"`
	MinPlatformVersion    string `gorm:"column:min_platform_version" json:"min_platform_version"`
	APIPermissionsXML     string `gorm:"column:api_permissions_xml;type:text" json:"api_permissions_xml"`

	PackageKey      string `gorm:"column:package_key" json:"package_key"`
	PackageFileName string `gorm:"column:package_file_name" json:"package_file_name"`
	IconKey         string `gorm:"column:icon_key" json:"icon_key"`
	IconURL         string `gorm:"column:icon_url" json:"icon_url"`

	Description string `gorm:"column:description;type:text" json:"description"`
	SupportURL  string `gorm:"column:support_url" json:"support_url"`
	VideoURL    string `gorm:"column:video_url" json:"video_url"`

	DeveloperContacts datatypes.JSON `gorm:"column:developer_contacts;type:jsonb" json:"developer_contacts"`

	IsTenantDeployed bool           `gorm:"column:is_tenant_deployed" json:"is_tenant_deployed"`
	SiteDeployments  datatypes.JSON `gorm:"column:site_deployments;type:jsonb" json:"site_deployments"`
	CatalogItemID    int            `gorm:"column:catalog_item_id" json:"catalog_item_id"`

	PackageErrorMessage string `gorm:"column:package_error_message;type:text" json:"package_error_message"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AppRecord) TableName() string { return "app_record" }

func (a *AppRecord) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// SiteDeploymentList decodes the tracked site URLs; a missing or
// malformed column reads as empty.
func (a *AppRecord) SiteDeploymentList() []string {
	return decodeStringList(a.SiteDeployments)
}

func (a *AppRecord) DeveloperContactList() []string {
	return decodeStringList(a.DeveloperContacts)
}

func decodeStringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func EncodeStringList(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	raw, _ := json.Marshal(values)
	return datatypes.JSON(raw)
}
