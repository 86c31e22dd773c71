package qa

const cypherPrompt = `Task: Generate a Cypher statement to query a graph database.
Instructions:
Use only the provided relationship types and properties in the schema.
Do not use any other relationship types or properties that are not provided.
Only read from the graph; never create, merge, set, delete or remove anything.
Schema:
%s
Note: Do not include any explanations or apologies in your responses.
Do not respond to any questions that might ask anything else than for you to construct a Cypher statement.
Do not include any text except the generated Cypher statement.

The question is:
%s`

const answerPrompt = `You are an assistant that helps to form nice and human understandable answers.
The information part contains the provided information that you must use to construct an answer.
The provided information is authoritative, you must never doubt it or try to use your internal knowledge to correct it.
Make the answer sound as a response to the question. Do not mention that you based the result on the given information.
If the provided information is empty, say that you don't know the answer.
Information:
%s

Question: %s
Helpful Answer:`

const examplesPrompt = `You help developers explore a code knowledge graph stored in Neo4j.
Schema:
%s
Write %d useful natural language questions a developer could ask about this code base, each with a read-only Cypher query that answers it using only the schema above.
Return JSON of the form {"examples": [{"question": "...", "cypher": "..."}]} and nothing else.`
