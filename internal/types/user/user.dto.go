package user

type CreateUserRequest struct {
	ClerkID      string `json:"clerkId" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Username     string `json:"username" validate:"required,min=3,max=30"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ReferralCode string `json:"referralCode,omitempty"`
}

type UpdateProfileRequest struct {
	Username  string `json:"username,omitempty" validate:"omitempty,min=3,max=30"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

type ApplyReferralRequest struct {
	Code string `json:"code" validate:"required,len=8,alphanum"`
}

type InviteResponse struct {
	ReferralCode  string `json:"referralCode"`
	ShareURL      string `json:"shareUrl"`
	QrCodeBase64  string `json:"qrCodeBase64"`
	ReferralCount int    `json:"referralCount"`
}
