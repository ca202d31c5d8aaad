package bot

import "fmt"

// User-facing reply texts. Failure messages name the available choices and
// never carry internal causes; those go to the log.

const welcomeText = "👋 Welcome to the AI Content Generation Bot!\n\n" +
	"I'll help you create amazing images. Let's follow these steps:\n\n" +
	"1️⃣ First, tell me what kind of image you want to create\n" +
	"2️⃣ We'll work together to create the perfect prompt\n" +
	"3️⃣ Generate and refine images\n\n" +
	"Please describe what you'd like to create!"

const promptChoiceRetryText = "Please respond with 1, 2, or 3:\n" +
	"1️⃣ Use enhanced prompt\n" +
	"2️⃣ Try another enhancement\n" +
	"3️⃣ Use original prompt"

const referenceQuestionText = "Do you have a reference image you'd like to use?\n" +
	"1️⃣ Yes, I'll upload an image\n" +
	"2️⃣ No, generate from scratch\n" +
	"Please respond with 1 or 2"

const referenceRetryText = "Please respond with 1 or 2:\n" +
	"1️⃣ Yes, I'll upload an image\n" +
	"2️⃣ No, generate from scratch"

const uploadPromptText = "Please upload your reference image."

const lostTrackText = "Sorry, I've lost track of your prompt. Let's start over.\n" +
	"Please provide a new prompt for your image."

const referenceFetchFailedText = "Sorry, I couldn't read that photo. Please upload your reference image again."

const processingText = "🎨 Generating your image...\n" +
	"This might take a minute or two. Please wait..."

const processingReferenceText = "🎨 Processing your reference image and generating new image...\n" +
	"This might take a minute or two. Please wait..."

const generatedCaption = "Generated Image"

const iterateFollowupText = "What would you like to do?\n\n" +
	"1️⃣ Use this image\n" +
	"2️⃣ Generate new variations\n" +
	"3️⃣ Modify the prompt\n\n" +
	"Please respond with a number 1-3"

const iterateRetryText = "Please respond with 1 or 2:\n" +
	"1️⃣ Try again\n" +
	"2️⃣ Modify the prompt"

const generationFailedText = "Sorry, there was an error generating the images. Would you like to:\n" +
	"1️⃣ Try again\n" +
	"2️⃣ Modify the prompt\n" +
	"Please respond with 1 or 2"

const enhanceFailedText = "Sorry, I had trouble enhancing your prompt. Would you like to try again?"

const newPromptText = "Please provide a new prompt for your image."

const cancelledText = "Operation cancelled. Type /start to begin again."

func promptTooLongText(length int) string {
	return fmt.Sprintf("📝 Your prompt is too long! Please keep it under 200 characters.\n\n"+
		"Current length: %d characters\n\n"+
		"Please try again with a shorter description.", length)
}

func promptChoiceText(original, enhanced string) string {
	return fmt.Sprintf("I've enhanced your prompt. Here's what I suggest:\n\n"+
		"Original: %s\n"+
		"Enhanced: %s\n\n"+
		"Would you like to:\n"+
		"1️⃣ Use this enhanced prompt\n"+
		"2️⃣ Try another enhancement\n"+
		"3️⃣ Use your original prompt\n"+
		"Please respond with 1, 2, or 3", original, enhanced)
}
