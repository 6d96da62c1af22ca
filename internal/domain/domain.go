package domain

import "errors"

const (
	StatusNotReached   = ""
	StatusPending      = "pending"
	StatusForwarded    = "forwarded"
	StatusReturned     = "returned"
	StatusReturnToEdit = "returntoedit"
	StatusRejected     = "rejected"
	StatusSanctioned   = "sanctioned"
	StatusShifted      = "shifted"
)

// Statuses lists every application status an officer can filter on.
var Statuses = []string{
	StatusPending,
	StatusForwarded,
	StatusReturned,
	StatusReturnToEdit,
	StatusShifted,
	StatusRejected,
	StatusSanctioned,
}

const (
	ActionForward         = "Forward"
	ActionReturn          = "Return"
	ActionReturnToCitizen = "ReturnToCitizen"
	ActionReject          = "Reject"
	ActionSanction        = "Sanction"
	ActionPull            = "Pull"
	ActionShift           = "Shift"
	ActionSubmitted       = "Submitted"
	ActionResubmitted     = "Resubmitted"
)

// Actions are the officer actions accepted by the transition engine.
var Actions = []string{
	ActionForward,
	ActionReturn,
	ActionReturnToCitizen,
	ActionReject,
	ActionSanction,
	ActionPull,
	ActionShift,
}

const (
	LevelTehsil   = "Tehsil"
	LevelDistrict = "District"
	LevelDivision = "Division"
	LevelState    = "State"
)

var AccessLevels = []string{LevelTehsil, LevelDistrict, LevelDivision, LevelState}

const (
	UserTypeOfficer = "Officer"
	UserTypeCitizen = "Citizen"
	UserTypeAdmin   = "Admin"
)

// CitizenActor is recorded as ActionTaker for citizen-side history rows.
const CitizenActor = "Citizen"

// HistoryDateLayout is the layout of ActionHistory.ActionTakenDate.
const HistoryDateLayout = "02 Jan 2006 03:04:05 PM"

// SubmissionDateLayout is used when rendering CreatedAt in listings and reports.
const SubmissionDateLayout = "02 Jan 2006"

var (
	ErrCorruptWorkflow    = errors.New("corrupt workflow")
	ErrCorruptFormDetails = errors.New("corrupt form details")
)

// IsTerminal reports whether no further officer action is possible.
func IsTerminal(status string) bool {
	return status == StatusRejected || status == StatusSanctioned
}

func IsAccessLevel(level string) bool {
	for _, l := range AccessLevels {
		if l == level {
			return true
		}
	}
	return false
}

type CitizenApplication struct {
	ReferenceNumber    string      `json:"referenceNumber"`
	ServiceID          int         `json:"serviceId"`
	ApplicantName      string      `json:"applicantName"`
	AccountNumber      string      `json:"accountNumber,omitempty"`
	FormDetails        FormDetails `json:"formDetails"`
	WorkFlow           Workflow    `json:"workFlow"`
	CurrentPlayer      int         `json:"currentPlayer"`
	Status             string      `json:"status" enum:"pending,forwarded,returned,returntoedit,rejected,sanctioned,shifted"`
	EditableFields     []string    `json:"editableFields,omitempty"`
	SanctionLetterPath string      `json:"sanctionLetterPath,omitempty"`
	SubmittedBy        string      `json:"submittedBy,omitempty"`
	Version            int         `json:"version"`
	CreatedAt          string      `json:"createdAt" format:"date-time"`
	UpdatedAt          string      `json:"updatedAt" format:"date-time"`
}

// Current returns the player holding the application.
func (a CitizenApplication) Current() (Player, bool) {
	if a.CurrentPlayer < 0 || a.CurrentPlayer >= len(a.WorkFlow) {
		return Player{}, false
	}
	return a.WorkFlow[a.CurrentPlayer], true
}

type ActionHistory struct {
	ID              int64  `json:"id"`
	ReferenceNumber string `json:"referenceNumber"`
	ActionTaker     string `json:"actionTaker"`
	ActionTaken     string `json:"actionTaken"`
	Remarks         string `json:"remarks"`
	LocationLevel   string `json:"locationLevel"`
	LocationValue   int    `json:"locationValue"`
	ActionTakenDate string `json:"actionTakenDate"`
}

type Officer struct {
	Username    string `json:"username"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role"`
	AccessLevel string `json:"accessLevel" enum:"Tehsil,District,Division,State"`
	AccessCode  int    `json:"accessCode"`
	UserType    string `json:"userType"`
	CreatedAt   string `json:"createdAt,omitempty" format:"date-time"`
}

type PoolEntry struct {
	ServiceID       int    `json:"serviceId"`
	AccessLevel     string `json:"accessLevel"`
	AccessCode      int    `json:"accessCode"`
	ReferenceNumber string `json:"referenceNumber"`
	CreatedAt       string `json:"createdAt" format:"date-time"`
}

// Service is a welfare scheme together with its workflow template.
type Service struct {
	ServiceID int      `json:"serviceId"`
	Name      string   `json:"name"`
	Steps     Workflow `json:"workflow"`
	CreatedAt string   `json:"createdAt,omitempty" format:"date-time"`
	UpdatedAt string   `json:"updatedAt,omitempty" format:"date-time"`
}

// StepFor returns the template step carrying the permission flags for a designation.
func (s Service) StepFor(designation string) (Player, bool) {
	for _, p := range s.Steps {
		if p.Designation == designation {
			return p, true
		}
	}
	return Player{}, false
}

type District struct {
	ID       int    `json:"districtId" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Division int    `json:"division" yaml:"division"`
}

type Tehsil struct {
	ID         int    `json:"tehsilId" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	DistrictID int    `json:"districtId" yaml:"district_id"`
}

type BankBranch struct {
	IFSC   string `json:"ifsc" yaml:"ifsc"`
	Bank   string `json:"bank" yaml:"bank"`
	Branch string `json:"branch" yaml:"branch"`
}

type APIKey struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
