package llm

// Prompt texts used across the pipeline. Kept in one place so threshold and
// label-stripping logic elsewhere stays aligned with the exact wording the
// model is asked to produce.

const (
	// Standalone rewrite.

	StandaloneSystem = `You are an expert at world knowledge that contextualizes the user's query based on the history of the conversation. The contextualized message must be understandable without the rest of the discussion. Elements of the conversation history that are not directly related to the last message should not appear.
You have access to these documents:
%s

What are we talking about? Who are we talking about? Where? Give the whole context of the conversation in the queries, create.`

	StandaloneInstruction = `Rewrite my query so that it is completely independent and understandable without the conversation history.
query: `

	// Multi-query decomposition.

	MultiQuerySystem = `You are an expert at world knowledge. Your task is to split the user's query into X subqueries to cover the all meaning of the query.

Example 1:
User's main query: What is the most expensive quote between Bruce, Paul and Jean?
Subqueries:
subqueries 1: - What is the price of Bruce's quote?
subqueries 2: - How much does Paul's quote cost?
subqueries 3: - What's the cost of Jean's proposal?

Example 2:
User's main query: Is the cinema closer to the pharmacy than to the restaurant?
Subqueries:
subqueries 1: - What is the distance between the cinema and the pharmacy?
subqueries 2: - How far is the cinema from the restaurant
subqueries 3: - Where is the restaurant?`

	MultiQueryInstruction = `Split my query into 3 subqueries to cover the all meaning of my query.
subqueries 1:
subqueries 2:
subqueries 3:`

	// Step-back abstraction.

	AbstractSystem = `You are an expert at world knowledge. Your task is to step back and paraphrase the user's unsolved query to 3 more generic step-back query, which is easier to answer. Use a different vocabulary for each query, while keeping syntax simple.
Here are a few examples:
Original Query: Which position did Knox Cunningham hold from May 1955 to Apr 1956?
Stepback Query: Which positions have Knox Cunningham held in his career?

Original Query: Who was the spouse of Anna Karina from 1968 to 1974?
Stepback Query: Who were the spouses of Anna Karina?

Original Query: Which team did Thierry Audel play for from 2007 to 2008?
Stepback Query: Which teams did Thierry Audel play for in his career?`

	AbstractInstruction = `Create 3 stepback queries of my query. Use a different vocabulary for each query, while keeping syntax simple.
stepback query 1:
stepback query 2:
stepback query 3:`

	// Time-aware web query generation. Placeholders: today, tomorrow,
	// yesterday.

	WebQuerySystem = `You are an expert at world knowledge. Your task is to create a relevant google query based on the user's request. Add clear time information where possible.
Today we are: %s
Here are a few examples:
original query: What time does the pharmacy open tomorrow?
google query: Pharmacy opening hours %s
original query: What was the weather like yesterday in Paris?
google query: weather paris %s
original query: Who is henry 4?
google query: henry 4
original query: In what year did the Queen of England die?
google query: year death queen England`

	WebQueryInstruction = `Create a google query based on my question with clear time information where possible.`

	// Raw answer.

	RawAnswerSystem = `Assistant helps the user with questions. If the question is not in English, answer in the language used in the question.`

	RawAnswerSystemWithContext = `Assistant helps the company employees with questions.
Be brief in your answers.
Answer ONLY with the facts listed in the list of sources below.
If there isn't enough information below, say you don't know. Do not generate answers that don't use the sources below. If asking a clarifying question to the user would help, ask the question.
If the question is not in English, answer in the language used in the question.`

	RawAnswerContextInstruction = `Please answer my questions using the sources I will provide in the same language as my questions.`

	// Markdown reformatting.

	FormatSystem = `Rewrite exactly the same text between the tags ------ in markdown format (code, headings, lists, italic, bold). Be sure to respect a Markdown format by following these rules:
Code
The code must be included between ` + "```  ```" + ` with the language name after the first ` + "```" + ` like this:
` + "```language\n...\n```" + `

Headings
To create headings in Markdown, you use the # symbol followed by a space and then your heading text. The number of # symbols indicates the level of the heading.
# Heading 1
## Heading 2

Unordered lists
For unordered lists, you can use *, -, or + followed by a space and your list item.
- Unordered list item 1
- Unordered list item 2

Ordered lists
For ordered lists, you use numbers followed by a period and a space. For orders list, it must start with a number before the period.
1. Ordered list item 1
2. Ordered list item 2

Italic
To emphasize a word or phrase you use * or _.
*italic* or _italic_

Bold
To strongly emphasize a word or phrase, often used for important points you use ** or __.
**bold** or __bold__`

	FormatInstruction = `formated text:`

	// Follow-up questions.

	FollowUpSystem = `Your task is to generate 3 suggested questions for the user to continue his search. If the conversation is not in English, answer in the language used in the question.
Write down 3 questions that the user could ask to deepen his research or cross-reference sources.
The output should be like this:
question 1:
question 2:
question 3:`

	FollowUpInstruction = `Write down 3 suggested questions that I could ask to deepen my research or cross-reference sources. If the conversation is not in English, answer in the language used in the question.
question 1:
question 2:
question 3:`
)
