package flow

// Operator-facing texts.
const (
	msgAskName      = "Enter the patient's full name:"
	msgAskBirthDate = "Enter the patient's birth date (format: YYYY-MM-DD):"

	msgNameInvalid = "⚠️ The name cannot be empty or consist only of spaces. The full name may contain only letters and spaces."
	msgNameTooLong = "⚠️ The full name is too long: at most %d characters are allowed."
	msgNameReset   = "⚠️ You have been returned to the main menu after repeated errors entering the name."

	msgBirthEmpty  = "⚠️ The birth date cannot be empty or consist only of spaces."
	msgBirthFormat = "⚠️ Invalid date format. Please use YYYY-MM-DD."
	msgBirthFuture = "⚠️ The birth date cannot be in the future. Please enter a valid date."
	msgBirthTooOld = "⚠️ The patient's age cannot be more than %d years. Please try again."
	msgBirthReset  = "⚠️ You have been returned to the main menu after repeated errors entering the birth date."

	msgAttemptsLeft  = "If you make %d more mistake(s), you will be returned to the main menu."
	msgGenericReset  = "⚠️ Too many invalid attempts. You have been returned to the main menu."
	msgIntakeFailure = "⚠️ The patient entry could not be completed. Please start again."

	msgPatientAdded  = "✅ Patient added!\n\n👤 Full name: %s\n🎂 Birth date: %s"
	msgConfirmPrompt = "Please check the details:\n\n👤 Full name: %s\n🎂 Birth date: %s\n\nSave this patient? Reply \"yes\" to save or anything else to discard."
	msgDiscarded     = "❌ The patient was not saved."
	msgExpired       = "⌛ The previous patient entry expired and was discarded."

	msgTodayHeader = "📅 Patients seen today:"
	msgTodayEmpty  = "There are no patients today."
	msgTodayLine   = "👤 %s (🎂 Birth date: %s)"
	msgWeekHeader  = "📊 Number of patients over the last 7 days:"
	msgWeekEmpty   = "No patients were recorded in the last 7 days."
	msgWeekLine    = "📅 %s: %d patient(s)"
	msgReportError = "⚠️ The report is unavailable right now. Please try again later."
)

// weekdayNames is indexed by time.Weekday, Sunday first.
var weekdayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// affirmatives are the answers that confirm a pending record.
var affirmatives = map[string]bool{
	"yes": true,
	"y":   true,
	"ok":  true,
	"1":   true,
	"да":  true,
	"д":   true,
}
