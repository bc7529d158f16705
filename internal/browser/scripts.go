package browser

// Functions run with the element bound to this. Each returns a value so
// CallFunctionOn never yields undefined.
const (
	jsMeta = `function() {
	let label = '';
	if (this.labels && this.labels.length > 0) {
		label = this.labels[0].textContent || '';
	} else if (this.id) {
		const byFor = document.querySelector('label[for="' + CSS.escape(this.id) + '"]');
		if (byFor) label = byFor.textContent || '';
	}
	if (!label) label = this.getAttribute('aria-label') || '';
	return {
		name: this.getAttribute('name') || '',
		id: this.id || '',
		placeholder: this.getAttribute('placeholder') || '',
		label: label.trim(),
		type: (this.getAttribute('type') || '').toLowerCase(),
	};
}`

	jsText = `function() {
	return (this.innerText || this.textContent || '').trim();
}`

	jsAttribute = `function(name) {
	const v = this.getAttribute(name);
	return v == null ? '' : v;
}`

	jsVisible = `function() {
	if (!this.isConnected) return false;
	const style = window.getComputedStyle(this);
	if (style.display === 'none' || style.visibility === 'hidden' || style.visibility === 'collapse') return false;
	if (parseFloat(style.opacity) === 0) return false;
	const rect = this.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
}`

	jsBox = `function() {
	const r = this.getBoundingClientRect();
	return {x: r.x, y: r.y, width: r.width, height: r.height};
}`

	jsClear = `function() {
	if (this.disabled || this.readOnly) return false;
	if ('value' in this) this.value = '';
	else this.textContent = '';
	return true;
}`

	jsSelectAll = `function() {
	this.focus();
	if (typeof this.select === 'function') this.select();
	return true;
}`

	jsDispatch = `function(names) {
	for (const name of names) {
		this.dispatchEvent(new Event(name, {bubbles: true}));
	}
	return true;
}`

	jsOptions = `function() {
	return Array.from(this.options || []).map((o, i) => ({
		text: (o.textContent || '').trim(),
		value: o.value,
		index: i,
	}));
}`

	jsSelectValue = `function(v) {
	this.value = v;
	return this.value === v;
}`

	jsValue = `function() {
	if ('value' in this && this.value != null) return String(this.value);
	return this.textContent || '';
}`
)
