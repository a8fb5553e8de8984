package dto

type ChangePasswordDTO struct {
	Password string `json:"password" binding:"required"`
}
