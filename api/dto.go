package api

type registerReq struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FullName  string `json:"full_name" validate:"required,max=120"`
	StudentID string `json:"student_id" validate:"required,max=32"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type profileReq struct {
	FullName string `json:"full_name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"max=20"`
	Faculty  string `json:"faculty" validate:"max=120"`
}

type passwordReq struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

type bookReq struct {
	Title       string `json:"title" validate:"required,max=200"`
	Author      string `json:"author" validate:"required,max=200"`
	Subject     string `json:"subject" validate:"max=120"`
	Faculty     string `json:"faculty" validate:"max=120"`
	Description string `json:"description" validate:"max=2000"`
}

type offerReq struct {
	Type       string   `json:"type" validate:"required,oneof=BORROW SELL EXCHANGE"`
	Price      *float64 `json:"price" validate:"omitempty,gte=0"`
	BorrowDays *int     `json:"borrow_days" validate:"omitempty,gt=0"`
}

type conditionReq struct {
	Condition string `json:"condition" validate:"required,oneof=NEW LIKE_NEW GOOD FAIR OLD"`
}

type imageReq struct {
	ImageURL string `json:"image_url" validate:"required,url"`
}

type requestReq struct {
	BookID  string `json:"book_id" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=BORROW BUY EXCHANGE"`
	Message string `json:"message" validate:"max=500"`
}

type reasonReq struct {
	Reason string `json:"reason" validate:"max=500"`
}

type deliverReq struct {
	BorrowDays int `json:"borrow_days" validate:"gte=0"`
}

type extendReq struct {
	ExtraDays int `json:"extra_days" validate:"required,gt=0"`
}

type rateReq struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"max=1000"`
}

type reportReq struct {
	ReportedUserID string `json:"reported_user_id" validate:"required"`
	Type           string `json:"type" validate:"required,oneof=LATE_RETURN NOT_RETURN DAMAGED_BOOK FAKE_INFO INAPPROPRIATE OTHER"`
	Description    string `json:"description" validate:"max=2000"`
	TransactionID  string `json:"transaction_id"`
}

type blockReq struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type trustReq struct {
	Observation *float64 `json:"observation" validate:"required,gte=0,lte=5"`
	Reason      string   `json:"reason" validate:"required,max=500"`
}

type processReportReq struct {
	Status string `json:"status" validate:"required,oneof=INVESTIGATING RESOLVED REJECTED"`
	Note   string `json:"note" validate:"max=1000"`
}

type broadcastReq struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"required,max=2000"`
}
