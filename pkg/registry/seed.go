package registry

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedLookups inserts the reference data the registry ships with. Existing
// rows are left untouched so local overrides survive restarts.
func SeedLookups(db *gorm.DB) error {
	categories := []SystemCategory{
		{CategoryCode: "EDC", CategoryName: "Electronic Data Capture", DefaultCriticality: CriticalityCritical, SortOrder: 10, IsActive: true},
		{CategoryCode: "CTMS", CategoryName: "Clinical Trial Management System", DefaultCriticality: CriticalityMajor, SortOrder: 20, IsActive: true},
		{CategoryCode: "IRT", CategoryName: "Randomization and Trial Supply", DefaultCriticality: CriticalityCritical, SortOrder: 30, IsActive: true},
		{CategoryCode: "ECOA", CategoryName: "Electronic Clinical Outcome Assessment", DefaultCriticality: CriticalityMajor, SortOrder: 40, IsActive: true},
		{CategoryCode: "SAFETY", CategoryName: "Safety / Pharmacovigilance", DefaultCriticality: CriticalityCritical, SortOrder: 50, IsActive: true},
		{CategoryCode: "LAB", CategoryName: "Central Laboratory", DefaultCriticality: CriticalityMajor, SortOrder: 60, IsActive: true},
		{CategoryCode: "IMAGING", CategoryName: "Medical Imaging", DefaultCriticality: CriticalityMajor, SortOrder: 70, IsActive: true},
		{CategoryCode: "STATS", CategoryName: "Statistical Computing", DefaultCriticality: CriticalityStandard, SortOrder: 80, IsActive: true},
	}

	statuses := []ValidationStatus{
		{StatusCode: ValidationValidated, StatusName: "Validated", SortOrder: 10, IsActive: true},
		{StatusCode: ValidationPending, StatusName: "Validation Pending", RequiresAttention: true, SortOrder: 20, IsActive: true},
		{StatusCode: ValidationExpired, StatusName: "Validation Expired", RequiresAttention: true, SortOrder: 30, IsActive: true},
		{StatusCode: ValidationNotValidated, StatusName: "Not Validated", RequiresAttention: true, SortOrder: 40, IsActive: true},
	}

	levels := []Criticality{
		{CriticalityCode: CriticalityCritical, CriticalityName: "Critical", Description: "Direct impact on primary endpoint data integrity", SortOrder: 10, IsActive: true},
		{CriticalityCode: CriticalityMajor, CriticalityName: "Major", Description: "Significant operational impact", SortOrder: 20, IsActive: true},
		{CriticalityCode: CriticalityStandard, CriticalityName: "Standard", Description: "Supporting system", SortOrder: 30, IsActive: true},
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&categories).Error; err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&statuses).Error; err != nil {
		return fmt.Errorf("seed validation statuses: %w", err)
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&levels).Error; err != nil {
		return fmt.Errorf("seed criticalities: %w", err)
	}
	return nil
}
