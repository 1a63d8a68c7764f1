package entitlement

import "errors"

var (
	ErrPlanNotFound             = errors.New("entitlement.errors.plan_not_found")
	ErrInvalidPlanConfiguration = errors.New("entitlement.errors.invalid_plan_configuration")
	ErrInvalidFeatures          = errors.New("entitlement.errors.invalid_features")
	ErrInvalidField             = errors.New("entitlement.errors.invalid_field")
	ErrFailedToLoadPlans        = errors.New("entitlement.errors.failed_to_load_plans")
)
