package llm

const reviewPrompt = `Act as a senior reviewer for The Lancet. Perform an exhaustive critical analysis of the following medical paper. Your output must be strictly MARKDOWN.

Paper text:
%s

Base the analysis on these 10 key points:
1. **Premise challenge**: Does the study assume unproven truths?
2. **Conflicts of interest**: Are there undeclared or implicit financial or institutional biases?
3. **Internal/methodological validity**: Does the design (RCT, observational, etc.) justify the conclusions?
4. **External validity**: Are the results generalizable to a real population?
5. **Statistical biases**: P-hacking? Wide confidence intervals? Is NNT reported?
6. **Clinical relevance**: Is the result statistically significant but clinically irrelevant?
7. **Comparison with standard of care**: Did the control group receive the best current treatment?
8. **Endpoints**: Were hard endpoints (mortality) used, or surrogates (biomarkers)?
9. **Reproducibility and transparency**: Is the data available?
10. **Conclusion vs data**: Does the conclusion overstate the findings (spin)?

Finish with a one-sentence verdict such as "Recommended for practice change" or "Weak evidence".`

const snippetsPrompt = `Extract the following information from the medical text as valid JSON:
{
    "n_study": "sample size (e.g. 1540 patients)",
    "nnt": "number needed to treat (or 'N/A')",
    "summary_slide": "one punchy sentence for a presentation slide (max 20 words)",
    "study_type": "study design (RCT, cohort, meta-analysis, etc.)",
    "specialty": "medical specialty (cardiology, ICU, neurology, etc.)",
    "quality_score": 0.0,
    "tags": ["short", "topic", "tags"],
    "population": "studied population in a few words",
    "year": 0
}
quality_score is 0-10 judged from methodology and reporting. year is the publication year if stated, else 0.

Text:
%s`

const graphPrompt = `Describe the axes, the confidence intervals and the real trend of this medical chart.
Context (if any): %s

Answer:
1. Objective description of the chart.
2. Does the visual representation exaggerate or minimize any effect?
3. Does it match the typical conclusion of a positive paper?`

const quizPrompt = `This is a clinical teaching image (ECG, imaging, or similar). Build a quiz as valid JSON:
{
    "question": "what the reader should determine",
    "options": ["option A", "option B", "option C", "option D"],
    "correct": 0,
    "explanation": "why the correct option is right, in 2-3 sentences"
}
correct is the zero-based index of the right option. Options must be plausible distractors.`
