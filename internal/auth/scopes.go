package auth

// ScopeWorkoutsWrite allows submitting workouts for reconciliation.
const ScopeWorkoutsWrite = "workouts:write"
