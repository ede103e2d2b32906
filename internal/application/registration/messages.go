package registration

import (
	"fmt"
	"time"

	"github.com/care-attendance/attendance-bot/pkg/timeutil"
)

// Данные кнопок согласия.
const (
	CallbackConsentAgree   = "consent:agree"
	CallbackConsentDecline = "consent:decline"
)

const (
	msgConsentRetry     = "Please answer Agree or Decline."
	msgConsentDeclined  = "Registration cancelled. Use /start whenever you change your mind."
	msgInvalidMobile    = "Invalid mobile! Enter 10-digit number."
	msgInvalidEmail     = "Invalid email! Enter an address like name@example.com."
	msgAskMobile        = "Enter your Mobile Number (10 digits):"
	msgAskEmail         = "Enter your Email address:"
	msgDeliveryFailed   = "Could not send the OTP. Enter /start again."
	msgOtpExpired       = "OTP expired. Enter /start again."
	msgOtpWrong         = "Wrong OTP. Try again."
	msgOtpNotNumeric    = "Enter numbers only for OTP."
	msgAskDepartment    = "Enter your Department (CSE / MECH / ECE / AIDS / AI&DS):"
	msgAskNewDepartment = "Enter new Department (CSE / MECH / ECE / AIDS / AI&DS):"
	msgInvalidDept      = "Invalid dept! CSE | MECH | ECE | AIDS | AI&DS"
	msgAskYear          = "Enter your Year (I / II / III / IV):"
	msgAskNewYear       = "Enter new Year (I / II / III / IV):"
	msgInvalidYear      = "Invalid year! I | II | III | IV"
	msgRegistered       = "Registration complete! Use /attendance anytime."
	msgUpdated          = "Department & Year updated successfully!"
	msgNotRegistered    = "Not registered yet. Use /start first."
	msgSaveFailed       = "Something went wrong while saving. Enter /start again."
	msgCancelled        = "Cancelled. Use /start to begin again."
	msgNothingToCancel  = "Nothing to cancel."
	msgInvalidInput     = "Invalid input. Use /start, /attendance, or /updateinfo."
	msgTryLater         = "Something went wrong. Please try again later."
)

func msgAlreadyRegistered(name string) string {
	return fmt.Sprintf("Already registered as %s. Use /attendance.", name)
}

func msgConsent(name string) string {
	return fmt.Sprintf("Hi %s! To send you attendance alerts this bot stores your CARE register number, "+
		"contact, department and year. Do you agree?", name)
}

func msgAskRegistration(prefix string) string {
	return fmt.Sprintf("Enter your CARE Register Number (starts with %s):", prefix)
}

func msgInvalidRegistration(hint string) string {
	return fmt.Sprintf("Invalid register number. Try again (%s).", hint)
}

func msgEnterOtp(contact string, emailed bool, window time.Duration) string {
	if emailed {
		return fmt.Sprintf("OTP sent to %s. Enter it here to verify (valid %s):", contact, timeutil.FormatWindow(window))
	}
	return fmt.Sprintf("Enter the OTP here to verify (valid %s):", timeutil.FormatWindow(window))
}
