package workflow

// Action names a workflow state. The zero value None is terminal: no step is
// ever registered for it.
type Action int

const (
	None Action = iota

	BuildPongMessage
	SendMessage
	SendPhoto

	GetRandomTemplate
	GetRandomSource
	BuildMeme
	SendMeme

	CreateTemplate
	DeleteReviewTemplate
	ConfirmReviewTemplate
	ReviewTemplate
	SendTemplateApprovedMessage
	SendTemplateRejectedMessage

	CreateSource
	DeleteReviewSource
	ConfirmReviewSource
	ReviewSource
	SendSourceApprovedMessage
	SendSourceRejectedMessage

	BackupDatabase
	BackupTemplates
	BackupSources
	SendReport
)

var actionNames = map[Action]string{
	None:                        "NONE",
	BuildPongMessage:            "BUILD_PONG_MESSAGE",
	SendMessage:                 "SEND_MESSAGE",
	SendPhoto:                   "SEND_PHOTO",
	GetRandomTemplate:           "GET_RANDOM_TEMPLATE",
	GetRandomSource:             "GET_RANDOM_SOURCE",
	BuildMeme:                   "BUILD_MEME",
	SendMeme:                    "SEND_MEME",
	CreateTemplate:              "CREATE_TEMPLATE",
	DeleteReviewTemplate:        "DELETE_REVIEW_TEMPLATE",
	ConfirmReviewTemplate:       "CONFIRM_REVIEW_TEMPLATE",
	ReviewTemplate:              "REVIEW_TEMPLATE",
	SendTemplateApprovedMessage: "SEND_TEMPLATE_APPROVED_MESSAGE",
	SendTemplateRejectedMessage: "SEND_TEMPLATE_REJECTED_MESSAGE",
	CreateSource:                "CREATE_SOURCE",
	DeleteReviewSource:          "DELETE_REVIEW_SOURCE",
	ConfirmReviewSource:         "CONFIRM_REVIEW_SOURCE",
	ReviewSource:                "REVIEW_SOURCE",
	SendSourceApprovedMessage:   "SEND_SOURCE_APPROVED_MESSAGE",
	SendSourceRejectedMessage:   "SEND_SOURCE_REJECTED_MESSAGE",
	BackupDatabase:              "BACKUP_DATABASE",
	BackupTemplates:             "BACKUP_TEMPLATES",
	BackupSources:               "BACKUP_SOURCES",
	SendReport:                  "SEND_REPORT",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseAction is the inverse of String
func ParseAction(name string) (Action, bool) {
	for a, n := range actionNames {
		if n == name {
			return a, true
		}
	}
	return None, false
}
